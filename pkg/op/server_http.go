package op

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	httphelper "github.com/idpserver/idp/pkg/http"
	"github.com/idpserver/idp/pkg/oidc"
)

const (
	authorizationEndpointName = "authorization"
	backchannelEndpointName   = "backchannel_authentication"
	tokenEndpointName         = "token"
)

// AuthorizationResponse is returned by the authorization endpoint once the
// request has been validated and stored.
type AuthorizationResponse struct {
	ID        string                    `json:"id"`
	ExpiresAt time.Time                 `json:"expires_at"`
	Profile   oidc.AuthorizationProfile `json:"profile"`
	Scope     oidc.SpaceDelimitedArray  `json:"scope"`
}

// HttpHandler returns the router of the tenant scoped endpoints.
func (o *Provider) HttpHandler() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.New(o.corsOptions).Handler)
	router.Use(o.LogMiddleware())
	router.Use(o.middleware...)

	router.Get(healthEndpoint, healthHandler)
	if o.metrics != nil {
		router.Handle(metricsEndpoint, o.metrics)
	}
	router.Get(authorizationEndpoint, o.authorizeHandler)
	router.Post(authorizationEndpoint, o.authorizeHandler)
	router.Post(backchannelEndpoint, o.backchannelHandler)
	router.Post(tokenEndpoint, o.tokenHandler)
	return router
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	httphelper.MarshalJSON(w, map[string]string{"status": "ok"})
}

func tenantFromRequest(r *http.Request) (string, *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	return tenant, r.WithContext(ContextWithTenant(r.Context(), tenant))
}

func (o *Provider) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	tenant, r := tenantFromRequest(r)
	if err := r.ParseForm(); err != nil {
		WriteError(w, r, authorizationEndpointName, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err))
		return
	}
	request, err := o.authorization.Handle(r.Context(), tenant, r.Form)
	if err != nil {
		WriteError(w, r, authorizationEndpointName, err)
		return
	}
	httphelper.MarshalJSON(w, &AuthorizationResponse{
		ID:        request.ID,
		ExpiresAt: request.ExpiresAt,
		Profile:   request.Profile,
		Scope:     request.Scopes,
	})
}

func (o *Provider) backchannelHandler(w http.ResponseWriter, r *http.Request) {
	tenant, r := tenantFromRequest(r)
	auth, err := o.clientAuthentication(r)
	if err != nil {
		WriteError(w, r, backchannelEndpointName, err)
		return
	}
	response, err := o.backchannel.Handle(r.Context(), tenant, auth, r.PostForm)
	if err != nil {
		WriteError(w, r, backchannelEndpointName, err)
		return
	}
	httphelper.MarshalJSONNoStore(w, response, http.StatusOK)
}

func (o *Provider) tokenHandler(w http.ResponseWriter, r *http.Request) {
	tenant, r := tenantFromRequest(r)
	auth, err := o.clientAuthentication(r)
	if err != nil {
		WriteError(w, r, tokenEndpointName, err)
		return
	}
	response, err := o.token.Handle(r.Context(), tenant, auth, r.PostForm)
	if err != nil {
		WriteError(w, r, tokenEndpointName, err)
		return
	}
	httphelper.MarshalJSONNoStore(w, response, http.StatusOK)
}

func (o *Provider) clientAuthentication(r *http.Request) (*ClientAuthentication, error) {
	if err := r.ParseForm(); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err)
	}
	return ClientAuthenticationFromRequest(r, o.mtls)
}
