package op

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/idpserver/idp/pkg/oidc"
)

const (
	DefaultBackchannelPollingInterval = 5 * time.Second
	DefaultBackchannelAuthExpiresIn   = 5 * time.Minute
)

// BackchannelAuthenticationRequest is the validated backchannel
// authentication request. It is read only once built.
type BackchannelAuthenticationRequest struct {
	ID           string                            `json:"id"`
	Tenant       string                            `json:"tenant"`
	Profile      oidc.CibaProfile                  `json:"profile"`
	Pattern      oidc.RequestPattern               `json:"pattern"`
	DeliveryMode oidc.BackchannelTokenDeliveryMode `json:"delivery_mode"`
	ClientID     string                            `json:"client_id"`
	Scopes       oidc.SpaceDelimitedArray          `json:"scopes"`

	ClientNotificationToken string                   `json:"client_notification_token,omitempty"`
	ACRValues               oidc.SpaceDelimitedArray `json:"acr_values,omitempty"`
	LoginHint               string                   `json:"login_hint,omitempty"`
	LoginHintToken          string                   `json:"login_hint_token,omitempty"`
	IDTokenHint             string                   `json:"id_token_hint,omitempty"`
	BindingMessage          string                   `json:"binding_message,omitempty"`
	UserCode                string                   `json:"user_code,omitempty"`
	RequestedExpiry         int                      `json:"requested_expiry,omitempty"`

	AuthorizationDetails oidc.AuthorizationDetails   `json:"authorization_details,omitempty"`
	ClaimsPayload        oidc.RequestedClaimsPayload `json:"claims_payload"`
	Request              string                      `json:"request,omitempty"`

	Interval  time.Duration `json:"interval"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// cibaValues are the effective backchannel parameters after a request
// object has been applied.
type cibaValues struct {
	ClientNotificationToken string
	ACRValues               oidc.SpaceDelimitedArray
	LoginHint               string
	LoginHintToken          string
	IDTokenHint             string
	BindingMessage          string
	UserCode                string
	RequestedExpiry         int
	AuthorizationDetails    string
	Claims                  string
}

func cibaValuesFromParameters(params *oidc.BackchannelAuthenticationParameters) *cibaValues {
	v := &cibaValues{
		ClientNotificationToken: params.ClientNotificationToken,
		ACRValues:               params.ACRValues,
		LoginHint:               params.LoginHint,
		LoginHintToken:          params.LoginHintToken,
		IDTokenHint:             params.IDTokenHint,
		BindingMessage:          params.BindingMessage,
		UserCode:                params.UserCode,
		AuthorizationDetails:    params.AuthorizationDetails,
	}
	if params.RequestedExpiry != nil {
		v.RequestedExpiry = *params.RequestedExpiry
	}
	return v
}

func (v *cibaValues) applyRequestObject(claims *oidc.RequestObjectClaims) {
	overrideString(&v.ClientNotificationToken, claims.ClientNotificationToken, claims.Has(oidc.ParamClientNotificationToken))
	overrideString(&v.LoginHint, claims.LoginHint, claims.Has(oidc.ParamLoginHint))
	overrideString(&v.LoginHintToken, claims.LoginHintToken, claims.Has(oidc.ParamLoginHintToken))
	overrideString(&v.IDTokenHint, claims.IDTokenHint, claims.Has(oidc.ParamIDTokenHint))
	overrideString(&v.BindingMessage, claims.BindingMessage, claims.Has(oidc.ParamBindingMessage))
	overrideString(&v.UserCode, claims.UserCode, claims.Has(oidc.ParamUserCode))
	if claims.Has(oidc.ParamACRValues) {
		v.ACRValues = oidc.NewSpaceDelimitedArray(claims.ACRValues)
	}
	if seconds, ok := claims.RequestedExpirySeconds(); ok {
		v.RequestedExpiry = seconds
	}
	if claims.Has(oidc.ParamAuthorizationDetails) {
		v.AuthorizationDetails = string(claims.AuthorizationDetails)
	}
	if claims.Has(oidc.ParamClaims) {
		v.Claims = string(claims.Claims)
	}
}

// CibaRequestContext is everything known about a backchannel
// authentication request. It is built once per request.
type CibaRequestContext struct {
	Tenant         string
	Pattern        oidc.RequestPattern
	Authentication *ClientAuthentication
	Parameters     *oidc.BackchannelAuthenticationParameters
	// Jose is nil for the normal pattern.
	Jose   *JoseContext
	Server *ServerConfiguration
	Client *ClientConfiguration

	Scopes  oidc.SpaceDelimitedArray
	Profile oidc.CibaProfile
	Request *BackchannelAuthenticationRequest

	values *cibaValues
}

func newCibaRequestContext(tenant string, pattern oidc.RequestPattern, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, jose *JoseContext, server *ServerConfiguration, client *ClientConfiguration, now time.Time) *CibaRequestContext {
	values := cibaValuesFromParameters(params)
	if jose.Exists() {
		values.applyRequestObject(jose.Claims)
	}
	scopes := FilterScopes(pattern, params.Scopes, jose, client)
	rc := &CibaRequestContext{
		Tenant:         tenant,
		Pattern:        pattern,
		Authentication: auth,
		Parameters:     params,
		Jose:           jose,
		Server:         server,
		Client:         client,
		Scopes:         scopes,
		Profile:        AnalyzeCibaProfile(scopes, server),
		values:         values,
	}
	rc.Request = rc.buildRequest(now)
	return rc
}

func (rc *CibaRequestContext) buildRequest(now time.Time) *BackchannelAuthenticationRequest {
	v := rc.values
	request := &BackchannelAuthenticationRequest{
		ID:                      uuid.NewString(),
		Tenant:                  rc.Tenant,
		Profile:                 rc.Profile,
		Pattern:                 rc.Pattern,
		DeliveryMode:            rc.Client.deliveryMode(),
		ClientID:                rc.Client.ClientID,
		Scopes:                  rc.Scopes,
		ClientNotificationToken: v.ClientNotificationToken,
		ACRValues:               v.ACRValues,
		LoginHint:               v.LoginHint,
		LoginHintToken:          v.LoginHintToken,
		IDTokenHint:             v.IDTokenHint,
		BindingMessage:          v.BindingMessage,
		UserCode:                v.UserCode,
		RequestedExpiry:         v.RequestedExpiry,
		Request:                 rc.Parameters.Request,
		Interval:                rc.Interval(),
		CreatedAt:               now,
		ExpiresAt:               now.Add(rc.ExpiresIn()),
	}
	if details, err := oidc.ParseAuthorizationDetails(v.AuthorizationDetails); err == nil {
		request.AuthorizationDetails = details
	}
	if payload, err := oidc.ParseRequestedClaims(v.Claims); err == nil {
		request.ClaimsPayload = payload
	}
	return request
}

func (rc *CibaRequestContext) HasOpenIDScope() bool {
	return rc.Scopes.Contains(oidc.ScopeOpenID)
}

func (rc *CibaRequestContext) HasAnyHint() bool {
	v := rc.values
	return v.LoginHint != "" || v.LoginHintToken != "" || v.IDTokenHint != ""
}

func (rc *CibaRequestContext) IsRequestObjectPattern() bool {
	return rc.Pattern == oidc.PatternRequestObject
}

// IsSupportedUserCode reports whether both the server and the client enabled
// the user_code parameter.
func (rc *CibaRequestContext) IsSupportedUserCode() bool {
	return rc.Server.BackchannelUserCodeParameterSupported && rc.Client.BackchannelUserCodeParameter
}

// Interval is the polling interval announced to the client.
func (rc *CibaRequestContext) Interval() time.Duration {
	interval := rc.Server.BackchannelPollingInterval
	if interval <= 0 {
		return DefaultBackchannelPollingInterval
	}
	// whole seconds, rounded up
	if rem := interval % time.Second; rem != 0 {
		interval += time.Second - rem
	}
	return interval
}

// ExpiresIn is the lifetime of the auth_req_id: requested_expiry when
// positive, bounded by the server lifetime.
func (rc *CibaRequestContext) ExpiresIn() time.Duration {
	lifetime := rc.Server.BackchannelAuthRequestExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultBackchannelAuthExpiresIn
	}
	if seconds := int64(rc.values.RequestedExpiry); seconds > 0 && seconds < int64(lifetime/time.Second) {
		return time.Duration(seconds) * time.Second
	}
	return lifetime
}

// CibaRequestContextCreator builds the backchannel request context for one pattern.
type CibaRequestContextCreator interface {
	Create(ctx context.Context, tenant string, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, server *ServerConfiguration, client *ClientConfiguration) (*CibaRequestContext, error)
}

type cibaCreatorFunc func(ctx context.Context, tenant string, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, server *ServerConfiguration, client *ClientConfiguration) (*CibaRequestContext, error)

func (f cibaCreatorFunc) Create(ctx context.Context, tenant string, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, server *ServerConfiguration, client *ClientConfiguration) (*CibaRequestContext, error) {
	return f(ctx, tenant, auth, params, server, client)
}

type CibaRequestContextCreators map[oidc.RequestPattern]CibaRequestContextCreator

func (c CibaRequestContextCreators) Get(pattern oidc.RequestPattern) (CibaRequestContextCreator, error) {
	creator, ok := c[pattern]
	if !ok || creator == nil {
		return nil, oidc.ErrServerError().WithDescription("unsupported request pattern (%s)", pattern)
	}
	return creator, nil
}

// NewCibaRequestContextCreators registers the normal and request object creators.
func NewCibaRequestContextCreators(now func() time.Time) CibaRequestContextCreators {
	if now == nil {
		now = time.Now
	}
	return CibaRequestContextCreators{
		oidc.PatternNormal: cibaCreatorFunc(func(ctx context.Context, tenant string, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, server *ServerConfiguration, client *ClientConfiguration) (*CibaRequestContext, error) {
			return newCibaRequestContext(tenant, oidc.PatternNormal, auth, params, nil, server, client, now()), nil
		}),
		oidc.PatternRequestObject: cibaCreatorFunc(func(ctx context.Context, tenant string, auth *ClientAuthentication, params *oidc.BackchannelAuthenticationParameters, server *ServerConfiguration, client *ClientConfiguration) (*CibaRequestContext, error) {
			jose, err := VerifyRequestObject(ctx, params.Request, server, client)
			if err != nil {
				return nil, oidc.ErrInvalidRequestObject().WithParent(err).WithDescription("request object is invalid, %s", joseFailure(err))
			}
			return newCibaRequestContext(tenant, oidc.PatternRequestObject, auth, params, jose, server, client, now()), nil
		}),
	}
}
