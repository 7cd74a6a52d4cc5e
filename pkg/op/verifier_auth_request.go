package op

import (
	"context"
	"net/url"
	"slices"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

// fapiMaxRequestObjectLifetime bounds exp - nbf of FAPI Advance request objects.
const fapiMaxRequestObjectLifetime = 60 * time.Minute

type authRequestCheck func(rc *OAuthRequestContext) *oidc.Error

// AuthorizationRequestVerifier runs the base checks, the request object
// checks when an object is present, and the checks of the computed profile.
type AuthorizationRequestVerifier struct {
	RequestObject *RequestObjectVerifier
	Profiles      map[oidc.AuthorizationProfile][]authRequestCheck
}

func NewAuthorizationRequestVerifier(requestObject *RequestObjectVerifier) *AuthorizationRequestVerifier {
	return &AuthorizationRequestVerifier{
		RequestObject: requestObject,
		Profiles: map[oidc.AuthorizationProfile][]authRequestCheck{
			oidc.ProfileOIDC:         oidcChecks,
			oidc.ProfileFapiBaseline: fapiBaselineChecks,
			oidc.ProfileFapiAdvance:  fapiAdvanceChecks,
		},
	}
}

var baseChecks = []authRequestCheck{
	checkRequestObjectRequired,
	checkResponseType,
	checkRedirectURI,
	checkPrompt,
	checkCodeChallenge,
}

var oidcChecks = []authRequestCheck{
	checkOpenIDForIDToken,
	checkNonceForIDToken,
}

var fapiBaselineChecks = []authRequestCheck{
	checkRedirectURIRequiredHTTPS,
	checkNoSharedSecretAuth,
	checkPKCES256,
	checkNonceOrState,
}

var fapiAdvanceChecks = []authRequestCheck{
	checkRedirectURIRequiredHTTPS,
	checkFapiRequestObject,
	checkFapiAlgorithm,
	checkFapiResponseType,
	checkFapiRequestObjectLifetime,
	checkFapiConfidentialClient,
	checkNonceForIDToken,
}

func (v *AuthorizationRequestVerifier) Verify(ctx context.Context, rc *OAuthRequestContext) error {
	ctx, span := tracer.Start(ctx, "AuthorizationRequestVerifier.Verify")
	defer span.End()

	if err := runAuthRequestChecks(rc, baseChecks); err != nil {
		return err
	}
	if rc.Jose.Exists() {
		if err := v.requestObject().Verify(ctx, rc.Tenant, rc.Jose, rc.Server, rc.Client); err != nil {
			return err
		}
	}
	if err := runAuthRequestChecks(rc, []authRequestCheck{checkValidScope}); err != nil {
		return err
	}
	checks, ok := v.Profiles[rc.Profile]
	if !ok {
		return oidc.ErrServerError().WithDescription("unsupported authorization profile (%s)", rc.Profile)
	}
	return runAuthRequestChecks(rc, checks)
}

func (v *AuthorizationRequestVerifier) requestObject() *RequestObjectVerifier {
	if v.RequestObject == nil {
		return NewRequestObjectVerifier(nil)
	}
	return v.RequestObject
}

func runAuthRequestChecks(rc *OAuthRequestContext, checks []authRequestCheck) error {
	for _, check := range checks {
		if err := check(rc); err != nil {
			return err.WithState(rc.State())
		}
	}
	return nil
}

func checkRequestObjectRequired(rc *OAuthRequestContext) *oidc.Error {
	if rc.Client.RequireSignedRequestObject && !rc.Pattern.IsRequestObject() {
		return oidc.ErrInvalidRequest().WithDescription("The client requires a signed request object. " +
			"Please send the request parameters in request or request_uri.")
	}
	return nil
}

func checkResponseType(rc *OAuthRequestContext) *oidc.Error {
	responseType := rc.ResponseType()
	if responseType == "" {
		return oidc.ErrInvalidRequest().WithDescription("The response type is missing in your request. " +
			"If you have any questions, you may contact the administrator of the application.")
	}
	if !rc.Server.IsSupportedResponseType(responseType) {
		return oidc.ErrUnsupportedResponseType().WithDescription("The response type (%s) is not supported by the server.", responseType)
	}
	if !rc.Client.IsResponseTypeAllowed(responseType) {
		return oidc.ErrUnauthorizedClient().WithDescription("The requested response type is missing in the client configuration. " +
			"If you have any questions, you may contact the administrator of the application.")
	}
	return nil
}

// checkValidScope rejects requests where no requested scope is registered
// for the client.
func checkValidScope(rc *OAuthRequestContext) *oidc.Error {
	if len(rc.Scopes) == 0 {
		return oidc.ErrInvalidScope().WithDescription("authorization request does not contain a valid scope (%s)", rc.values.Scopes)
	}
	return nil
}

func checkRedirectURI(rc *OAuthRequestContext) *oidc.Error {
	redirectURI := rc.RedirectURI()
	if redirectURI == "" {
		if len(rc.Client.RedirectURIs) != 1 {
			return oidc.ErrInvalidRequest().WithDescription("The redirect_uri is missing in the request. " +
				"Please ensure it is added to the request.")
		}
		return nil
	}
	u, err := url.Parse(redirectURI)
	if err != nil {
		return oidc.ErrInvalidRequest().WithDescription("The redirect_uri is not a valid URI.")
	}
	if u.Fragment != "" || u.RawFragment != "" {
		return oidc.ErrInvalidRequest().WithDescription("The redirect_uri must not contain a fragment.")
	}
	if !rc.Client.IsRegisteredRedirectURI(redirectURI) {
		return oidc.ErrInvalidRequest().WithDescription("The requested redirect_uri is missing in the client configuration. " +
			"If you have any questions, you may contact the administrator of the application.")
	}
	return nil
}

func checkPrompt(rc *OAuthRequestContext) *oidc.Error {
	prompts := rc.values.Prompt
	if slices.Contains(prompts, oidc.PromptNone) && len(prompts) > 1 {
		return oidc.ErrInvalidRequest().WithDescription("The prompt parameter `none` must only be used as a single value")
	}
	return nil
}

func checkCodeChallenge(rc *OAuthRequestContext) *oidc.Error {
	method := rc.CodeChallengeMethod()
	if method == "" {
		return nil
	}
	if rc.CodeChallenge() == "" {
		return oidc.ErrInvalidRequest().WithDescription("The code_challenge_method is set but the code_challenge is missing.")
	}
	if method != oidc.CodeChallengeMethodPlain && method != oidc.CodeChallengeMethodS256 {
		return oidc.ErrInvalidRequest().WithDescription("The code_challenge_method (%s) is not supported.", method)
	}
	return nil
}

func checkOpenIDForIDToken(rc *OAuthRequestContext) *oidc.Error {
	if rc.ResponseType().ContainsIDToken() && !rc.HasOpenIDScope() {
		return oidc.ErrInvalidScope().WithDescription("The scope openid is missing in your request. " +
			"Please ensure the scope openid is added to the request.")
	}
	return nil
}

func checkNonceForIDToken(rc *OAuthRequestContext) *oidc.Error {
	if rc.ResponseType().ContainsIDToken() && rc.Nonce() == "" {
		return oidc.ErrInvalidRequest().WithDescription("The nonce is required when an id_token is returned from the authorization endpoint.")
	}
	return nil
}

func checkRedirectURIRequiredHTTPS(rc *OAuthRequestContext) *oidc.Error {
	redirectURI := rc.RedirectURI()
	if redirectURI == "" {
		return oidc.ErrInvalidRequest().WithDescription("The redirect_uri is required for FAPI requests.")
	}
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "https" {
		return oidc.ErrInvalidRequest().WithDescription("The redirect_uri must use https for FAPI requests.")
	}
	return nil
}

func checkNoSharedSecretAuth(rc *OAuthRequestContext) *oidc.Error {
	switch rc.Client.TokenEndpointAuthMethod {
	case oidc.ClientAuthMethodBasic, oidc.ClientAuthMethodPost:
		return oidc.ErrUnauthorizedClient().WithDescription("The client authentication method (%s) is not allowed for FAPI requests.", rc.Client.TokenEndpointAuthMethod)
	}
	return nil
}

func checkPKCES256(rc *OAuthRequestContext) *oidc.Error {
	if rc.CodeChallenge() == "" || rc.CodeChallengeMethod() != oidc.CodeChallengeMethodS256 {
		return oidc.ErrInvalidRequest().WithDescription("FAPI requests require a code_challenge with code_challenge_method S256.")
	}
	return nil
}

func checkNonceOrState(rc *OAuthRequestContext) *oidc.Error {
	if rc.HasOpenIDScope() {
		if rc.Nonce() == "" {
			return oidc.ErrInvalidRequest().WithDescription("The nonce is required for FAPI requests with scope openid.")
		}
		return nil
	}
	if rc.State() == "" {
		return oidc.ErrInvalidRequest().WithDescription("The state is required for FAPI requests without scope openid.")
	}
	return nil
}

func checkFapiRequestObject(rc *OAuthRequestContext) *oidc.Error {
	if !rc.Pattern.IsRequestObject() || !rc.Jose.Exists() {
		return oidc.ErrInvalidRequest().WithDescription("FAPI advance requests must be sent as a request object.")
	}
	return nil
}

func checkFapiAlgorithm(rc *OAuthRequestContext) *oidc.Error {
	if !oidc.IsFapiAlgorithm(rc.Jose.Algorithm) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, FAPI advance requires PS256 or ES256, got %s", rc.Jose.Algorithm)
	}
	return nil
}

func checkFapiResponseType(rc *OAuthRequestContext) *oidc.Error {
	responseType := rc.ResponseType().Normalize()
	if responseType == oidc.ResponseTypeCodeIDToken.Normalize() {
		return nil
	}
	if responseType == oidc.ResponseTypeCode && rc.ResponseMode() == oidc.ResponseModeJWT {
		return nil
	}
	return oidc.ErrInvalidRequest().WithDescription("FAPI advance requests require response_type `code id_token`, or `code` with response_mode jwt.")
}

func checkFapiRequestObjectLifetime(rc *OAuthRequestContext) *oidc.Error {
	claims := rc.Jose.Claims
	if !claims.Has("nbf") || claims.NotBefore == 0 {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains nbf claim in jwt payload")
	}
	lifetime := claims.Expiration.AsTime().Sub(claims.NotBefore.AsTime())
	if lifetime > fapiMaxRequestObjectLifetime {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, exp claim must be no more than 60 minutes after nbf claim")
	}
	return nil
}

func checkFapiConfidentialClient(rc *OAuthRequestContext) *oidc.Error {
	switch rc.Client.TokenEndpointAuthMethod {
	case oidc.ClientAuthMethodPrivateKeyJWT, oidc.ClientAuthMethodTLS, oidc.ClientAuthMethodSelfSignedTLS:
		return nil
	}
	return oidc.ErrUnauthorizedClient().WithDescription("FAPI advance requests require a confidential client using private_key_jwt or mTLS authentication.")
}
