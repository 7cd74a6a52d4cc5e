package oidc

import (
	"net/url"
	"slices"
)

const (
	// ScopeOpenID defines the scope `openid`
	// OpenID Connect requests MUST contain the `openid` scope value
	ScopeOpenID = "openid"

	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeAddress       = "address"
	ScopePhone         = "phone"
	ScopeOfflineAccess = "offline_access"
)

// Authorization endpoint parameter names.
const (
	ParamResponseType         = "response_type"
	ParamClientID             = "client_id"
	ParamRedirectURI          = "redirect_uri"
	ParamScope                = "scope"
	ParamState                = "state"
	ParamResponseMode         = "response_mode"
	ParamNonce                = "nonce"
	ParamDisplay              = "display"
	ParamPrompt               = "prompt"
	ParamMaxAge               = "max_age"
	ParamUILocales            = "ui_locales"
	ParamIDTokenHint          = "id_token_hint"
	ParamLoginHint            = "login_hint"
	ParamLoginHintToken       = "login_hint_token"
	ParamACRValues            = "acr_values"
	ParamClaims               = "claims"
	ParamRequest              = "request"
	ParamRequestURI           = "request_uri"
	ParamCodeChallenge        = "code_challenge"
	ParamCodeChallengeMethod  = "code_challenge_method"
	ParamAuthorizationDetails = "authorization_details"
)

var authorizationParamNames = []string{
	ParamResponseType, ParamClientID, ParamRedirectURI, ParamScope, ParamState,
	ParamResponseMode, ParamNonce, ParamDisplay, ParamPrompt, ParamMaxAge,
	ParamUILocales, ParamIDTokenHint, ParamLoginHint, ParamACRValues, ParamClaims,
	ParamRequest, ParamRequestURI, ParamCodeChallenge, ParamCodeChallengeMethod,
	ParamAuthorizationDetails,
}

// AuthorizationParameters are the parameters of an authorization request
// as received in the query or form.
// https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type AuthorizationParameters struct {
	ResponseType         ResponseType        `schema:"response_type"`
	ClientID             string              `schema:"client_id"`
	RedirectURI          string              `schema:"redirect_uri"`
	Scopes               SpaceDelimitedArray `schema:"scope"`
	State                string              `schema:"state"`
	ResponseMode         ResponseMode        `schema:"response_mode"`
	Nonce                string              `schema:"nonce"`
	Display              Display             `schema:"display"`
	Prompt               SpaceDelimitedArray `schema:"prompt"`
	MaxAge               *uint64             `schema:"max_age"`
	UILocales            Locales             `schema:"ui_locales"`
	IDTokenHint          string              `schema:"id_token_hint"`
	LoginHint            string              `schema:"login_hint"`
	ACRValues            SpaceDelimitedArray `schema:"acr_values"`
	Claims               string              `schema:"claims"`
	Request              string              `schema:"request"`
	RequestURI           string              `schema:"request_uri"`
	CodeChallenge        string              `schema:"code_challenge"`
	CodeChallengeMethod  CodeChallengeMethod `schema:"code_challenge_method"`
	AuthorizationDetails string              `schema:"authorization_details"`

	// Custom holds every parameter that is not part of the protocol, verbatim.
	Custom url.Values `schema:"-"`
}

// CustomParameters returns the values whose keys are not authorization
// endpoint parameters.
func CustomParameters(values url.Values) url.Values {
	custom := make(url.Values)
	for key, v := range values {
		if slices.Contains(authorizationParamNames, key) {
			continue
		}
		custom[key] = slices.Clone(v)
	}
	return custom
}

// Pattern determines the delivery pattern from the present parameters.
// The second return value is false when both `request` and `request_uri` are set.
func (p *AuthorizationParameters) Pattern() (RequestPattern, bool) {
	switch {
	case p.Request != "" && p.RequestURI != "":
		return 0, false
	case p.Request != "":
		return PatternRequestObject, true
	case p.RequestURI != "":
		return PatternRequestURI, true
	default:
		return PatternNormal, true
	}
}
