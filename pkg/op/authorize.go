package op

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/idpserver/idp/internal/otel"
	httphelper "github.com/idpserver/idp/pkg/http"
	"github.com/idpserver/idp/pkg/oidc"
)

// AuthorizationRequestHandler validates authorization requests and hands
// the resulting aggregate to the repository.
type AuthorizationRequestHandler struct {
	Config   ConfigurationRepository
	Requests AuthorizationRequestRepository
	Creators RequestContextCreators
	Verifier *AuthorizationRequestVerifier
	Decoder  httphelper.Decoder
	Now      func() time.Time
}

// Handle runs the authorization request pipeline for tenant over the query
// or form values.
func (h *AuthorizationRequestHandler) Handle(ctx context.Context, tenant string, values url.Values) (_ *AuthorizationRequest, err error) {
	ctx, span := tracer.Start(ctx, "AuthorizationRequestHandler.Handle")
	defer span.End()
	otel.Tenant(span, tenant)
	defer func() {
		if err != nil {
			otel.Fail(span, err)
		}
	}()

	params, err := ParseAuthorizationParameters(values, h.Decoder)
	if err != nil {
		return nil, err
	}
	if params.ClientID == "" {
		return nil, oidc.ErrInvalidRequest().WithDescription("The client_id is missing in the request.")
	}
	pattern, ok := params.Pattern()
	if !ok {
		return nil, oidc.ErrInvalidRequest().WithDescription("request and request_uri must not be used together")
	}

	server, client, err := loadConfiguration(ctx, h.Config, tenant, params.ClientID)
	if err != nil {
		return nil, err
	}
	creator, err := h.Creators.Get(pattern)
	if err != nil {
		return nil, err
	}
	rc, err := creator.Create(ctx, tenant, params, server, client)
	if err != nil {
		return nil, err
	}
	if err := h.Verifier.Verify(ctx, rc); err != nil {
		return nil, err
	}

	request := rc.BuildAuthorizationRequest(h.now)
	if err := h.Requests.RegisterAuthorizationRequest(ctx, request); err != nil {
		return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to store authorization request")
	}
	return request, nil
}

func (h *AuthorizationRequestHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// ParseAuthorizationParameters decodes the values and rejects parameters
// that were sent more than once.
func ParseAuthorizationParameters(values url.Values, decoder httphelper.Decoder) (*oidc.AuthorizationParameters, error) {
	if err := checkDuplicateParameters(values); err != nil {
		return nil, err
	}
	params := new(oidc.AuthorizationParameters)
	if err := decoder.Decode(params, values); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse auth request").WithParent(err)
	}
	params.Custom = oidc.CustomParameters(values)
	return params, nil
}

func checkDuplicateParameters(values url.Values) *oidc.Error {
	for key, v := range values {
		if len(v) > 1 {
			return oidc.ErrInvalidRequest().WithDescription("The parameter %s must not be included more than once.", key)
		}
	}
	return nil
}

// loadConfiguration resolves the tenant and client configuration for one request.
func loadConfiguration(ctx context.Context, repo ConfigurationRepository, tenant, clientID string) (*ServerConfiguration, *ClientConfiguration, error) {
	server, err := repo.ServerConfiguration(ctx, tenant)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, oidc.ErrInvalidRequest().WithParent(err).WithDescription("unknown tenant (%s)", tenant)
	}
	if err != nil {
		return nil, nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to load server configuration")
	}
	client, err := repo.ClientConfiguration(ctx, tenant, clientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, oidc.ErrInvalidClient().WithParent(err).WithDescription("The client (%s) is not registered.", clientID)
	}
	if err != nil {
		return nil, nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to load client configuration")
	}
	return server, client, nil
}
