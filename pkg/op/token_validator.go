package op

import (
	"net/url"

	"github.com/idpserver/idp/pkg/oidc"
)

// TokenRequestContext is the read-only view of a token request that the
// grant validators and the TokenIssuer work on.
type TokenRequestContext struct {
	Tenant         string
	GrantType      oidc.GrantType
	Parameters     url.Values
	Authentication *ClientAuthentication
	Server         *ServerConfiguration
	Client         *ClientConfiguration
}

func (c *TokenRequestContext) Value(name string) string {
	return c.Parameters.Get(name)
}

func (c *TokenRequestContext) has(name string) bool {
	return c.Parameters.Get(name) != ""
}

// hasClientID reports whether the client was identified by client_id or
// by client_secret_basic.
func (c *TokenRequestContext) hasClientID() bool {
	return c.Authentication.IsBasic() || c.has(oidc.ParamClientID)
}

// ValidateTokenRequest runs the checks that do not depend on the grant type:
// grant_type is required and no parameter may be sent more than once.
func ValidateTokenRequest(values url.Values) error {
	if values.Get(oidc.ParamGrantType) == "" {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains grant_type")
	}
	if err := checkDuplicateParameters(values); err != nil {
		return err
	}
	return nil
}

// GrantValidator checks the grant specific preconditions of a token request.
type GrantValidator func(tc *TokenRequestContext) error

// GrantValidators is the registration table of grant validators.
type GrantValidators map[oidc.GrantType]GrantValidator

// DefaultGrantValidators registers the validators of the supported grant types.
func DefaultGrantValidators() GrantValidators {
	return GrantValidators{
		oidc.GrantTypeCode:              validateAuthorizationCodeGrant,
		oidc.GrantTypeRefreshToken:      validateRefreshTokenGrant,
		oidc.GrantTypeClientCredentials: validateClientCredentialsGrant,
		oidc.GrantTypePassword:          validatePasswordGrant,
		oidc.GrantTypeCIBA:              validateCibaGrant,
	}
}

// Validate runs the validator of tc.GrantType. An unknown grant type is
// reported as unsupported_grant_type.
func (v GrantValidators) Validate(tc *TokenRequestContext) error {
	validator, ok := v[tc.GrantType]
	if !ok {
		return oidc.ErrUnsupportedGrantType().WithDescription("the grant type (%s) is not supported", tc.GrantType)
	}
	return validator(tc)
}

func checkGrantTypeSupported(tc *TokenRequestContext) error {
	if !tc.Server.IsSupportedGrantType(tc.GrantType) {
		return oidc.ErrUnsupportedGrantType().WithDescription("this request grant_type is %s, but authorization server does not support", tc.GrantType)
	}
	if !tc.Client.IsGrantTypeAllowed(tc.GrantType) {
		return oidc.ErrUnauthorizedClient().WithDescription("this request grant_type is %s, but client does not support", tc.GrantType)
	}
	return nil
}

func validateAuthorizationCodeGrant(tc *TokenRequestContext) error {
	if err := checkGrantTypeSupported(tc); err != nil {
		return err
	}
	if !tc.has(oidc.ParamCode) {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains code, authorization_code grant must contains code")
	}
	return nil
}

// validateRefreshTokenGrant checks the refresh_token parameter before the
// grant type support.
func validateRefreshTokenGrant(tc *TokenRequestContext) error {
	if !tc.has(oidc.ParamRefreshToken) {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains refresh_token, refresh_token grant must contains refresh_token")
	}
	return checkGrantTypeSupported(tc)
}

func validateClientCredentialsGrant(tc *TokenRequestContext) error {
	return checkGrantTypeSupported(tc)
}

func validatePasswordGrant(tc *TokenRequestContext) error {
	if err := checkGrantTypeSupported(tc); err != nil {
		return err
	}
	if !tc.has(oidc.ParamUsername) {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains username, password grant must contains username")
	}
	if !tc.has(oidc.ParamPassword) {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains password, password grant must contains password")
	}
	if !tc.hasClientID() {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains client_id, password grant must contains client_id")
	}
	return nil
}

func validateCibaGrant(tc *TokenRequestContext) error {
	if err := checkGrantTypeSupported(tc); err != nil {
		return err
	}
	if !tc.has(oidc.ParamAuthReqID) {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains auth_req_id, ciba grant must contains auth_req_id")
	}
	if !tc.hasClientID() {
		return oidc.ErrInvalidRequest().WithDescription("token request does not contains client_id, ciba grant must contains client_id")
	}
	return nil
}
