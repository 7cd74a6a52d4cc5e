package op

import (
	"crypto/subtle"
	"crypto/x509"
	"net/http"
	"net/url"
	"slices"

	"github.com/idpserver/idp/pkg/oidc"
)

// ClientAuthentication is the client authentication material presented
// with a token or backchannel authentication request.
type ClientAuthentication struct {
	ClientID     string
	ClientSecret string
	// Basic is true when the credentials came from the Authorization header.
	Basic        bool
	Certificates []*x509.Certificate
}

// ClientAuthenticationFromRequest reads HTTP Basic credentials, the
// client_id and client_secret form parameters and the client certificate.
// The form must have been parsed.
func ClientAuthenticationFromRequest(r *http.Request, mtls *MTLSConfig) (*ClientAuthentication, error) {
	auth := &ClientAuthentication{
		ClientID:     r.PostForm.Get(oidc.ParamClientID),
		ClientSecret: r.PostForm.Get(oidc.ParamClientSecret),
	}
	if clientID, clientSecret, ok := r.BasicAuth(); ok {
		var err error
		auth.ClientID, err = url.QueryUnescape(clientID)
		if err != nil {
			return nil, oidc.ErrInvalidClient().WithDescription("invalid basic auth header").WithParent(err)
		}
		auth.ClientSecret, err = url.QueryUnescape(clientSecret)
		if err != nil {
			return nil, oidc.ErrInvalidClient().WithDescription("invalid basic auth header").WithParent(err)
		}
		auth.Basic = true
	}
	certs, err := ClientCertificateFromRequest(r, mtls)
	if err != nil {
		return nil, oidc.ErrInvalidClient().WithDescription("invalid client certificate").WithParent(err)
	}
	auth.Certificates = certs
	return auth, nil
}

// IsBasic reports whether client_secret_basic credentials were presented.
func (a *ClientAuthentication) IsBasic() bool {
	return a != nil && a.Basic
}

// HasCertificate reports whether a client certificate was presented.
func (a *ClientAuthentication) HasCertificate() bool {
	return a != nil && len(a.Certificates) > 0
}

// AuthenticateClient checks the presented material against the registered
// token_endpoint_auth_method of the client.
func AuthenticateClient(auth *ClientAuthentication, server *ServerConfiguration, client *ClientConfiguration, mtls *MTLSConfig) error {
	method := client.TokenEndpointAuthMethod
	if method == "" {
		method = oidc.ClientAuthMethodBasic
	}
	if len(server.TokenEndpointAuthMethodsSupported) > 0 && !slices.Contains(server.TokenEndpointAuthMethodsSupported, method) {
		return oidc.ErrInvalidClient().WithDescription("client authentication method (%s) is not supported", method)
	}
	switch method {
	case oidc.ClientAuthMethodBasic:
		if !auth.IsBasic() {
			return oidc.ErrInvalidClient().WithDescription("client_secret_basic authentication is required")
		}
		return checkClientSecret(auth.ClientSecret, client)
	case oidc.ClientAuthMethodPost:
		if auth.IsBasic() {
			return oidc.ErrInvalidClient().WithDescription("client_secret_post authentication is required")
		}
		return checkClientSecret(auth.ClientSecret, client)
	case oidc.ClientAuthMethodTLS:
		if !auth.HasCertificate() {
			return oidc.ErrInvalidClient().WithDescription("no client certificate provided")
		}
		if err := ValidateTLSClientAuth(auth.Certificates, mtls, client.TLSClientAuthSubjectDN); err != nil {
			return oidc.ErrInvalidClient().WithDescription("mTLS client authentication failed").WithParent(err)
		}
		return nil
	case oidc.ClientAuthMethodSelfSignedTLS:
		if !auth.HasCertificate() {
			return oidc.ErrInvalidClient().WithDescription("no client certificate provided")
		}
		set, err := oidc.ParseJSONWebKeySet(client.JWKS)
		if err != nil {
			return oidc.ErrInvalidClient().WithDescription("client jwks is invalid").WithParent(err)
		}
		if err := ValidateSelfSignedTLSClientAuth(auth.Certificates[0], set.Keys); err != nil {
			return oidc.ErrInvalidClient().WithDescription("mTLS client authentication failed").WithParent(err)
		}
		return nil
	case oidc.ClientAuthMethodNone:
		if auth.ClientSecret != "" {
			return oidc.ErrInvalidClient().WithDescription("public clients must not send a client secret")
		}
		return nil
	default:
		return oidc.ErrInvalidClient().WithDescription("client authentication method (%s) is not supported", method)
	}
}

func checkClientSecret(presented string, client *ClientConfiguration) error {
	if presented == "" || client.ClientSecret == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(client.ClientSecret)) != 1 {
		return oidc.ErrInvalidClient().WithDescription("invalid client_secret")
	}
	return nil
}
