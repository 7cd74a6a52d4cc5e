package op

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/muhlemmer/gu"

	"github.com/idpserver/idp/pkg/oidc"
)

// AuthorizationRequest is the validated authorization request handed to the
// issuance logic. It is built once by an AuthorizationRequestBuilder and
// only read afterwards.
type AuthorizationRequest struct {
	ID      string                    `json:"id"`
	Tenant  string                    `json:"tenant"`
	Profile oidc.AuthorizationProfile `json:"profile"`
	Pattern oidc.RequestPattern       `json:"pattern"`

	Scopes       oidc.SpaceDelimitedArray `json:"scopes"`
	ResponseType oidc.ResponseType        `json:"response_type"`
	Client       ClientAttributes         `json:"client"`
	RedirectURI  string                   `json:"redirect_uri,omitempty"`
	State        string                   `json:"state,omitempty"`
	ResponseMode oidc.ResponseMode        `json:"response_mode,omitempty"`
	Nonce        string                   `json:"nonce,omitempty"`
	Display      oidc.Display             `json:"display,omitempty"`
	Prompts      oidc.SpaceDelimitedArray `json:"prompts,omitempty"`
	MaxAge       uint64                   `json:"max_age,omitempty"`
	UILocales    oidc.SpaceDelimitedArray `json:"ui_locales,omitempty"`
	IDTokenHint  string                   `json:"id_token_hint,omitempty"`
	LoginHint    string                   `json:"login_hint,omitempty"`
	ACRValues    oidc.SpaceDelimitedArray `json:"acr_values,omitempty"`

	Claims        string                      `json:"claims,omitempty"`
	ClaimsPayload oidc.RequestedClaimsPayload `json:"claims_payload"`

	Request    string `json:"request,omitempty"`
	RequestURI string `json:"request_uri,omitempty"`

	CodeChallenge        string                    `json:"code_challenge,omitempty"`
	CodeChallengeMethod  oidc.CodeChallengeMethod  `json:"code_challenge_method,omitempty"`
	AuthorizationDetails oidc.AuthorizationDetails `json:"authorization_details,omitempty"`

	CustomParams url.Values `json:"custom_params,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

func (a *AuthorizationRequest) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

func (a *AuthorizationRequest) HasOpenIDScope() bool {
	return a.Scopes.Contains(oidc.ScopeOpenID)
}

// authorizationValues are the effective parameters of an authorization
// request, after a request object has been applied on top of the query.
type authorizationValues struct {
	ResponseType         oidc.ResponseType
	RedirectURI          string
	Scopes               oidc.SpaceDelimitedArray
	State                string
	ResponseMode         oidc.ResponseMode
	Nonce                string
	Display              oidc.Display
	Prompt               oidc.SpaceDelimitedArray
	MaxAge               *uint64
	UILocales            oidc.Locales
	IDTokenHint          string
	LoginHint            string
	ACRValues            oidc.SpaceDelimitedArray
	Claims               string
	CodeChallenge        string
	CodeChallengeMethod  oidc.CodeChallengeMethod
	AuthorizationDetails string
	Custom               url.Values
}

func valuesFromParameters(params *oidc.AuthorizationParameters) *authorizationValues {
	return &authorizationValues{
		ResponseType:         params.ResponseType,
		RedirectURI:          params.RedirectURI,
		Scopes:               params.Scopes,
		State:                params.State,
		ResponseMode:         params.ResponseMode,
		Nonce:                params.Nonce,
		Display:              params.Display,
		Prompt:               params.Prompt,
		MaxAge:               params.MaxAge,
		UILocales:            params.UILocales,
		IDTokenHint:          params.IDTokenHint,
		LoginHint:            params.LoginHint,
		ACRValues:            params.ACRValues,
		Claims:               params.Claims,
		CodeChallenge:        params.CodeChallenge,
		CodeChallengeMethod:  params.CodeChallengeMethod,
		AuthorizationDetails: params.AuthorizationDetails,
		Custom:               params.Custom,
	}
}

// applyRequestObject overrides the values with the members present in the request object.
func (v *authorizationValues) applyRequestObject(claims *oidc.RequestObjectClaims) {
	if claims == nil {
		return
	}
	overrideString(&v.RedirectURI, claims.RedirectURI, claims.Has(oidc.ParamRedirectURI))
	overrideString(&v.State, claims.State, claims.Has(oidc.ParamState))
	overrideString(&v.Nonce, claims.Nonce, claims.Has(oidc.ParamNonce))
	overrideString(&v.IDTokenHint, claims.IDTokenHint, claims.Has(oidc.ParamIDTokenHint))
	overrideString(&v.LoginHint, claims.LoginHint, claims.Has(oidc.ParamLoginHint))
	overrideString(&v.CodeChallenge, claims.CodeChallenge, claims.Has(oidc.ParamCodeChallenge))
	if claims.Has(oidc.ParamResponseType) {
		v.ResponseType = claims.ResponseType
	}
	if claims.HasScope() {
		v.Scopes = claims.Scopes()
	}
	if claims.Has(oidc.ParamResponseMode) {
		v.ResponseMode = claims.ResponseMode
	}
	if claims.Has(oidc.ParamDisplay) {
		v.Display = claims.Display
	}
	if claims.Has(oidc.ParamPrompt) {
		v.Prompt = oidc.NewSpaceDelimitedArray(claims.Prompt)
	}
	if claims.Has(oidc.ParamMaxAge) {
		v.MaxAge = claims.MaxAge
	}
	if claims.Has(oidc.ParamUILocales) {
		v.UILocales = oidc.ParseLocales(oidc.NewSpaceDelimitedArray(claims.UILocales))
	}
	if claims.Has(oidc.ParamACRValues) {
		v.ACRValues = oidc.NewSpaceDelimitedArray(claims.ACRValues)
	}
	if claims.Has(oidc.ParamClaims) {
		v.Claims = string(claims.Claims)
	}
	if claims.Has(oidc.ParamCodeChallengeMethod) {
		v.CodeChallengeMethod = claims.CodeChallengeMethod
	}
	if claims.Has(oidc.ParamAuthorizationDetails) {
		v.AuthorizationDetails = string(claims.AuthorizationDetails)
	}
	custom := gu.MapCopy(v.Custom)
	if custom == nil {
		custom = make(url.Values)
	}
	for key, values := range claims.CustomParameters() {
		custom[key] = values
	}
	v.Custom = custom
}

func overrideString(dst *string, value string, present bool) {
	if present {
		*dst = value
	}
}

// AuthorizationRequestBuilder assembles an AuthorizationRequest.
// The identifier is generated when the builder is created.
type AuthorizationRequestBuilder struct {
	request AuthorizationRequest
}

func NewAuthorizationRequestBuilder(tenant string, pattern oidc.RequestPattern, profile oidc.AuthorizationProfile) *AuthorizationRequestBuilder {
	return &AuthorizationRequestBuilder{
		request: AuthorizationRequest{
			ID:      uuid.NewString(),
			Tenant:  tenant,
			Pattern: pattern,
			Profile: profile,
		},
	}
}

func (b *AuthorizationRequestBuilder) WithScopes(scopes oidc.SpaceDelimitedArray) *AuthorizationRequestBuilder {
	b.request.Scopes = scopes
	return b
}

func (b *AuthorizationRequestBuilder) WithClient(client *ClientConfiguration) *AuthorizationRequestBuilder {
	b.request.Client = client.Attributes()
	return b
}

func (b *AuthorizationRequestBuilder) WithRequestObject(request, requestURI string) *AuthorizationRequestBuilder {
	b.request.Request = request
	b.request.RequestURI = requestURI
	return b
}

// WithValues copies the effective parameters. max_age falls back to defaultMaxAge.
// Malformed claims and authorization_details are dropped.
func (b *AuthorizationRequestBuilder) WithValues(v *authorizationValues, defaultMaxAge uint64) *AuthorizationRequestBuilder {
	r := &b.request
	r.ResponseType = v.ResponseType
	r.RedirectURI = v.RedirectURI
	r.State = v.State
	r.ResponseMode = v.ResponseMode
	r.Nonce = v.Nonce
	r.Display = v.Display
	r.Prompts = v.Prompt
	r.MaxAge = defaultMaxAge
	if v.MaxAge != nil {
		r.MaxAge = *v.MaxAge
	}
	r.UILocales = localeStrings(v.UILocales)
	r.IDTokenHint = v.IDTokenHint
	r.LoginHint = v.LoginHint
	r.ACRValues = v.ACRValues
	r.Claims = v.Claims
	if payload, err := oidc.ParseRequestedClaims(v.Claims); err == nil {
		r.ClaimsPayload = payload
	}
	r.CodeChallenge = v.CodeChallenge
	r.CodeChallengeMethod = v.CodeChallengeMethod
	if details, err := oidc.ParseAuthorizationDetails(v.AuthorizationDetails); err == nil {
		r.AuthorizationDetails = details
	}
	r.CustomParams = v.Custom
	return b
}

func (b *AuthorizationRequestBuilder) WithExpiry(now time.Time, expiresIn time.Duration) *AuthorizationRequestBuilder {
	b.request.CreatedAt = now
	b.request.ExpiresAt = now.Add(expiresIn)
	return b
}

// Build returns a copy of the assembled request.
func (b *AuthorizationRequestBuilder) Build() *AuthorizationRequest {
	request := b.request
	return &request
}

func localeStrings(locales oidc.Locales) oidc.SpaceDelimitedArray {
	if len(locales) == 0 {
		return nil
	}
	out := make(oidc.SpaceDelimitedArray, len(locales))
	for i, tag := range locales {
		out[i] = tag.String()
	}
	return out
}
