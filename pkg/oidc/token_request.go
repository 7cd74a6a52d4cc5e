package oidc

import "slices"

const (
	// GrantTypeCode defines the grant_type `authorization_code` used for the Token Request in the Authorization Code Flow
	GrantTypeCode GrantType = "authorization_code"

	// GrantTypeRefreshToken defines the grant_type `refresh_token` used for the Token Request in the Refresh Token Flow
	GrantTypeRefreshToken GrantType = "refresh_token"

	// GrantTypeClientCredentials defines the grant_type `client_credentials` used for the Token Request in the Client Credentials Token Flow
	GrantTypeClientCredentials GrantType = "client_credentials"

	// GrantTypePassword defines the grant_type `password` of the Resource Owner Password Credentials Grant
	GrantTypePassword GrantType = "password"

	// GrantTypeCIBA defines the grant_type `urn:openid:params:grant-type:ciba` used to poll for a backchannel authentication result
	GrantTypeCIBA GrantType = "urn:openid:params:grant-type:ciba"

	// GrantTypeImplicit defines the grant type `implicit` used for implicit flows that skip the generation and exchange of an Authorization Code
	GrantTypeImplicit GrantType = "implicit"
)

var AllGrantTypes = []GrantType{
	GrantTypeCode, GrantTypeRefreshToken, GrantTypeClientCredentials,
	GrantTypePassword, GrantTypeCIBA, GrantTypeImplicit,
}

type GrantType string

func (g GrantType) IsSupported() bool {
	return slices.Contains(AllGrantTypes, g)
}

// Token endpoint parameter names.
const (
	ParamGrantType    = "grant_type"
	ParamCode         = "code"
	ParamRefreshToken = "refresh_token"
	ParamUsername     = "username"
	ParamPassword     = "password"
	ParamAuthReqID    = "auth_req_id"
	ParamClientSecret = "client_secret"
	ParamCodeVerifier = "code_verifier"
)

// AccessTokenResponse is the successful token endpoint response.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token,omitempty" schema:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty" schema:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty" schema:"refresh_token,omitempty"`
	ExpiresIn    uint64 `json:"expires_in,omitempty" schema:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty" schema:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty" schema:"scope,omitempty"`
}

// BearerToken defines the token_type `Bearer`, which is returned in a successful token response
const BearerToken = "Bearer"
