package oidc

// RequestPattern is the way authorization parameters are delivered.
type RequestPattern int

const (
	// PatternNormal carries parameters in the query or form.
	PatternNormal RequestPattern = iota + 1
	// PatternRequestObject carries a signed request object by value (`request`).
	PatternRequestObject
	// PatternRequestURI carries a signed request object by reference (`request_uri`).
	PatternRequestURI
)

func (p RequestPattern) String() string {
	switch p {
	case PatternNormal:
		return "normal"
	case PatternRequestObject:
		return "request_object"
	case PatternRequestURI:
		return "request_uri"
	default:
		return "undefined"
	}
}

// IsRequestObject reports whether the pattern carries a signed request object.
func (p RequestPattern) IsRequestObject() bool {
	return p == PatternRequestObject || p == PatternRequestURI
}

// AuthorizationProfile is the security profile of an authorization request.
// It is derived from scopes only, never requested by the client.
type AuthorizationProfile string

const (
	ProfileUndefined    AuthorizationProfile = "UNDEFINED"
	ProfileOIDC         AuthorizationProfile = "OIDC"
	ProfileFapiBaseline AuthorizationProfile = "FAPI_BASELINE"
	ProfileFapiAdvance  AuthorizationProfile = "FAPI_ADVANCE"
)

// CibaProfile is the security profile of a backchannel authentication request.
type CibaProfile string

const (
	CibaProfileCIBA     CibaProfile = "CIBA"
	CibaProfileFapiCiba CibaProfile = "FAPI_CIBA"
)

// ClientAuthMethod is a token endpoint authentication method.
type ClientAuthMethod string

const (
	ClientAuthMethodBasic         ClientAuthMethod = "client_secret_basic"
	ClientAuthMethodPost          ClientAuthMethod = "client_secret_post"
	ClientAuthMethodSecretJWT     ClientAuthMethod = "client_secret_jwt"
	ClientAuthMethodPrivateKeyJWT ClientAuthMethod = "private_key_jwt"
	ClientAuthMethodTLS           ClientAuthMethod = "tls_client_auth"
	ClientAuthMethodSelfSignedTLS ClientAuthMethod = "self_signed_tls_client_auth"
	ClientAuthMethodNone          ClientAuthMethod = "none"
)

// IsMTLS reports whether the method authenticates with a client certificate.
func (m ClientAuthMethod) IsMTLS() bool {
	return m == ClientAuthMethodTLS || m == ClientAuthMethodSelfSignedTLS
}

// BackchannelTokenDeliveryMode is how a CIBA client receives the result.
type BackchannelTokenDeliveryMode string

const (
	DeliveryModePoll BackchannelTokenDeliveryMode = "poll"
	DeliveryModePing BackchannelTokenDeliveryMode = "ping"
	DeliveryModePush BackchannelTokenDeliveryMode = "push"
)
