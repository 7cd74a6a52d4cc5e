package op

import (
	"slices"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

// ServerConfiguration is the authorization server configuration of one tenant.
// It is resolved per request and must not be cached across requests.
type ServerConfiguration struct {
	TenantID    string `json:"tenant_id" yaml:"tenant_id"`
	TokenIssuer string `json:"issuer" yaml:"issuer"`
	// JWKS is the tenant key set as a JWKS document.
	JWKS string `json:"jwks,omitempty" yaml:"jwks"`

	ScopesSupported                   []string                `json:"scopes_supported" yaml:"scopes_supported"`
	ResponseTypesSupported            []oidc.ResponseType     `json:"response_types_supported" yaml:"response_types_supported"`
	GrantTypesSupported               []oidc.GrantType        `json:"grant_types_supported" yaml:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []oidc.ClientAuthMethod `json:"token_endpoint_auth_methods_supported" yaml:"token_endpoint_auth_methods_supported"`

	FapiBaselineScopes []string `json:"fapi_baseline_scopes,omitempty" yaml:"fapi_baseline_scopes"`
	FapiAdvanceScopes  []string `json:"fapi_advance_scopes,omitempty" yaml:"fapi_advance_scopes"`

	DefaultMaxAge                  uint64        `json:"default_max_age,omitempty" yaml:"default_max_age"`
	AuthorizationRequestExpiresIn  time.Duration `json:"authorization_request_expires_in" yaml:"authorization_request_expires_in"`
	TLSClientCertificateBoundToken bool          `json:"tls_client_certificate_bound_access_tokens,omitempty" yaml:"tls_client_certificate_bound_access_tokens"`

	BackchannelTokenDeliveryModesSupported []oidc.BackchannelTokenDeliveryMode `json:"backchannel_token_delivery_modes_supported,omitempty" yaml:"backchannel_token_delivery_modes_supported"`
	BackchannelUserCodeParameterSupported  bool                                `json:"backchannel_user_code_parameter_supported,omitempty" yaml:"backchannel_user_code_parameter_supported"`
	BackchannelAuthRequestExpiresIn        time.Duration                       `json:"backchannel_auth_request_expires_in" yaml:"backchannel_auth_request_expires_in"`
	BackchannelPollingInterval             time.Duration                       `json:"backchannel_polling_interval" yaml:"backchannel_polling_interval"`
}

func (s *ServerConfiguration) IsSupportedGrantType(grantType oidc.GrantType) bool {
	return slices.Contains(s.GrantTypesSupported, grantType)
}

func (s *ServerConfiguration) IsSupportedResponseType(responseType oidc.ResponseType) bool {
	normalized := responseType.Normalize()
	return slices.ContainsFunc(s.ResponseTypesSupported, func(rt oidc.ResponseType) bool {
		return rt.Normalize() == normalized
	})
}

func (s *ServerConfiguration) IsSupportedDeliveryMode(mode oidc.BackchannelTokenDeliveryMode) bool {
	return slices.Contains(s.BackchannelTokenDeliveryModesSupported, mode)
}

func (s *ServerConfiguration) hasFapiBaselineScope(scopes []string) bool {
	return containsAny(s.FapiBaselineScopes, scopes)
}

func (s *ServerConfiguration) hasFapiAdvanceScope(scopes []string) bool {
	return containsAny(s.FapiAdvanceScopes, scopes)
}

// ClientConfiguration is a client registered at one tenant.
type ClientConfiguration struct {
	TenantID      string `json:"tenant_id" yaml:"tenant_id"`
	ClientID      string `json:"client_id" yaml:"client_id"`
	ClientIDAlias string `json:"client_id_alias,omitempty" yaml:"client_id_alias"`
	ClientSecret  string `json:"client_secret,omitempty" yaml:"client_secret"`
	ClientName    string `json:"client_name,omitempty" yaml:"client_name"`
	LogoURI       string `json:"logo_uri,omitempty" yaml:"logo_uri"`
	TosURI        string `json:"tos_uri,omitempty" yaml:"tos_uri"`
	PolicyURI     string `json:"policy_uri,omitempty" yaml:"policy_uri"`

	RedirectURIs  []string            `json:"redirect_uris" yaml:"redirect_uris"`
	ResponseTypes []oidc.ResponseType `json:"response_types" yaml:"response_types"`
	GrantTypes    []oidc.GrantType    `json:"grant_types" yaml:"grant_types"`
	// Scopes is the set of scopes the client may be granted.
	Scopes []string `json:"scope" yaml:"scopes"`

	// JWKS is the client key set as a JWKS document.
	JWKS                       string   `json:"jwks,omitempty" yaml:"jwks"`
	RequestURIs                []string `json:"request_uris,omitempty" yaml:"request_uris"`
	RequireSignedRequestObject bool     `json:"require_signed_request_object,omitempty" yaml:"require_signed_request_object"`

	TokenEndpointAuthMethod        oidc.ClientAuthMethod `json:"token_endpoint_auth_method" yaml:"token_endpoint_auth_method"`
	TLSClientAuthSubjectDN         string                `json:"tls_client_auth_subject_dn,omitempty" yaml:"tls_client_auth_subject_dn"`
	TLSClientCertificateBoundToken bool                  `json:"tls_client_certificate_bound_access_tokens,omitempty" yaml:"tls_client_certificate_bound_access_tokens"`

	BackchannelTokenDeliveryMode oidc.BackchannelTokenDeliveryMode `json:"backchannel_token_delivery_mode,omitempty" yaml:"backchannel_token_delivery_mode"`
	BackchannelUserCodeParameter bool                              `json:"backchannel_user_code_parameter,omitempty" yaml:"backchannel_user_code_parameter"`
}

// MatchesIssuer reports whether iss identifies the client by id or alias.
func (c *ClientConfiguration) MatchesIssuer(iss string) bool {
	if iss == "" {
		return false
	}
	return iss == c.ClientID || (c.ClientIDAlias != "" && iss == c.ClientIDAlias)
}

func (c *ClientConfiguration) IsGrantTypeAllowed(grantType oidc.GrantType) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

func (c *ClientConfiguration) IsResponseTypeAllowed(responseType oidc.ResponseType) bool {
	normalized := responseType.Normalize()
	return slices.ContainsFunc(c.ResponseTypes, func(rt oidc.ResponseType) bool {
		return rt.Normalize() == normalized
	})
}

// IsRegisteredRequestURI reports an exact match against the registered request_uris.
func (c *ClientConfiguration) IsRegisteredRequestURI(requestURI string) bool {
	return slices.Contains(c.RequestURIs, requestURI)
}

// IsRegisteredRedirectURI reports an exact match against the registered redirect_uris.
func (c *ClientConfiguration) IsRegisteredRedirectURI(redirectURI string) bool {
	return slices.Contains(c.RedirectURIs, redirectURI)
}

// IsConfidential reports whether the client authenticates at the token endpoint.
func (c *ClientConfiguration) IsConfidential() bool {
	return c.TokenEndpointAuthMethod != oidc.ClientAuthMethodNone && c.TokenEndpointAuthMethod != ""
}

func (c *ClientConfiguration) deliveryMode() oidc.BackchannelTokenDeliveryMode {
	if c.BackchannelTokenDeliveryMode == "" {
		return oidc.DeliveryModePoll
	}
	return c.BackchannelTokenDeliveryMode
}

// ClientAttributes are the client attributes copied into a request aggregate.
type ClientAttributes struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	LogoURI    string `json:"logo_uri,omitempty"`
	TosURI     string `json:"tos_uri,omitempty"`
	PolicyURI  string `json:"policy_uri,omitempty"`
}

func (c *ClientConfiguration) Attributes() ClientAttributes {
	return ClientAttributes{
		ClientID:   c.ClientID,
		ClientName: c.ClientName,
		LogoURI:    c.LogoURI,
		TosURI:     c.TosURI,
		PolicyURI:  c.PolicyURI,
	}
}

func containsAny(set []string, values []string) bool {
	for _, v := range values {
		if slices.Contains(set, v) {
			return true
		}
	}
	return false
}
