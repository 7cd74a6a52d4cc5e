package op

import (
	"context"
	"errors"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

// OAuthRequestContext is everything known about an authorization request
// once its delivery pattern has been resolved. It is built once per request.
type OAuthRequestContext struct {
	Tenant     string
	Pattern    oidc.RequestPattern
	Parameters *oidc.AuthorizationParameters
	// Jose is nil for the normal pattern.
	Jose   *JoseContext
	Server *ServerConfiguration
	Client *ClientConfiguration

	Scopes  oidc.SpaceDelimitedArray
	Profile oidc.AuthorizationProfile

	values *authorizationValues
}

func newOAuthRequestContext(tenant string, pattern oidc.RequestPattern, params *oidc.AuthorizationParameters, jose *JoseContext, server *ServerConfiguration, client *ClientConfiguration) *OAuthRequestContext {
	values := valuesFromParameters(params)
	if jose.Exists() {
		values.applyRequestObject(jose.Claims)
	}
	scopes := FilterScopes(pattern, params.Scopes, jose, client)
	return &OAuthRequestContext{
		Tenant:     tenant,
		Pattern:    pattern,
		Parameters: params,
		Jose:       jose,
		Server:     server,
		Client:     client,
		Scopes:     scopes,
		Profile:    AnalyzeProfile(scopes, server),
		values:     values,
	}
}

func (c *OAuthRequestContext) ResponseType() oidc.ResponseType { return c.values.ResponseType }
func (c *OAuthRequestContext) RedirectURI() string             { return c.values.RedirectURI }
func (c *OAuthRequestContext) State() string                   { return c.values.State }
func (c *OAuthRequestContext) Nonce() string                   { return c.values.Nonce }
func (c *OAuthRequestContext) ResponseMode() oidc.ResponseMode { return c.values.ResponseMode }
func (c *OAuthRequestContext) CodeChallenge() string           { return c.values.CodeChallenge }

func (c *OAuthRequestContext) CodeChallengeMethod() oidc.CodeChallengeMethod {
	return c.values.CodeChallengeMethod
}

func (c *OAuthRequestContext) HasOpenIDScope() bool {
	return c.Scopes.Contains(oidc.ScopeOpenID)
}

// BuildAuthorizationRequest materializes the aggregate. Every call yields
// a new identifier.
func (c *OAuthRequestContext) BuildAuthorizationRequest(now func() time.Time) *AuthorizationRequest {
	return NewAuthorizationRequestBuilder(c.Tenant, c.Pattern, c.Profile).
		WithScopes(c.Scopes).
		WithClient(c.Client).
		WithValues(c.values, c.Server.DefaultMaxAge).
		WithRequestObject(c.Parameters.Request, c.Parameters.RequestURI).
		WithExpiry(now(), c.Server.AuthorizationRequestExpiresIn).
		Build()
}

// RequestContextCreator builds the request context for one delivery pattern.
type RequestContextCreator interface {
	Create(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error)
}

type RequestContextCreatorFunc func(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error)

func (f RequestContextCreatorFunc) Create(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error) {
	return f(ctx, tenant, params, server, client)
}

// RequestContextCreators is the registration table of creators by pattern.
// It is built once at startup.
type RequestContextCreators map[oidc.RequestPattern]RequestContextCreator

// Get returns the creator for pattern. A missing entry is a wiring fault.
func (c RequestContextCreators) Get(pattern oidc.RequestPattern) (RequestContextCreator, error) {
	creator, ok := c[pattern]
	if !ok || creator == nil {
		return nil, oidc.ErrServerError().WithDescription("unsupported request pattern (%s)", pattern)
	}
	return creator, nil
}

// NewRequestContextCreators registers the normal, request object and
// request_uri creators.
func NewRequestContextCreators(resolver *RequestObjectResolver) RequestContextCreators {
	return RequestContextCreators{
		oidc.PatternNormal:        RequestContextCreatorFunc(createNormalContext),
		oidc.PatternRequestObject: RequestContextCreatorFunc(createRequestObjectContext),
		oidc.PatternRequestURI:    &requestURIContextCreator{resolver: resolver},
	}
}

func createNormalContext(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error) {
	return newOAuthRequestContext(tenant, oidc.PatternNormal, params, nil, server, client), nil
}

func createRequestObjectContext(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error) {
	jose, err := verifyOAuthRequestObject(ctx, params.Request, server, client)
	if err != nil {
		return nil, err
	}
	return newOAuthRequestContext(tenant, oidc.PatternRequestObject, params, jose, server, client), nil
}

type requestURIContextCreator struct {
	resolver *RequestObjectResolver
}

func (c *requestURIContextCreator) Create(ctx context.Context, tenant string, params *oidc.AuthorizationParameters, server *ServerConfiguration, client *ClientConfiguration) (*OAuthRequestContext, error) {
	if c.resolver == nil {
		return nil, oidc.ErrServerError().WithDescription("request_uri is not supported")
	}
	object, err := c.resolver.Resolve(ctx, client, params.RequestURI)
	if err != nil {
		return nil, err
	}
	jose, err := verifyOAuthRequestObject(ctx, object, server, client)
	if err != nil {
		return nil, err
	}
	return newOAuthRequestContext(tenant, oidc.PatternRequestURI, params, jose, server, client), nil
}

// verifyOAuthRequestObject reports any JOSE failure as invalid_request.
func verifyOAuthRequestObject(ctx context.Context, raw string, server *ServerConfiguration, client *ClientConfiguration) (*JoseContext, error) {
	jose, err := VerifyRequestObject(ctx, raw, server, client)
	if err != nil {
		return nil, oidc.ErrInvalidRequest().WithParent(err).WithDescription("request object is invalid, %s", joseFailure(err))
	}
	return jose, nil
}

func joseFailure(err error) string {
	for _, sentinel := range []error{ErrJoseParse, ErrJoseKeyNotFound, ErrJoseSignature, ErrJoseClientSecret} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "unable to verify request object"
}
