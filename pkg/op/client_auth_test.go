package op_test

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/internal/testutil"
	"github.com/idpserver/idp/pkg/oidc"
	"github.com/idpserver/idp/pkg/op"
)

func TestAuthenticateClient(t *testing.T) {
	cert, _ := testutil.NewCertificate(pkix.Name{CommonName: "client-1", Organization: []string{"Example"}})
	other, _ := testutil.NewCertificate(pkix.Name{CommonName: "intruder"})

	withMethod := func(method oidc.ClientAuthMethod, modify func(*op.ClientConfiguration)) *op.ClientConfiguration {
		c := testClient()
		c.TokenEndpointAuthMethod = method
		if modify != nil {
			modify(c)
		}
		return c
	}

	tests := []struct {
		name        string
		server      *op.ServerConfiguration
		client      *op.ClientConfiguration
		auth        *op.ClientAuthentication
		description string
	}{
		{
			name:   "basic",
			client: withMethod(oidc.ClientAuthMethodBasic, nil),
			auth:   &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true},
		},
		{
			name:   "default method is basic",
			client: withMethod("", nil),
			auth:   &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true},
		},
		{
			name:        "basic with form credentials",
			client:      withMethod(oidc.ClientAuthMethodBasic, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret},
			description: "client_secret_basic authentication is required",
		},
		{
			name:        "basic with wrong secret",
			client:      withMethod(oidc.ClientAuthMethodBasic, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID, ClientSecret: "wrong", Basic: true},
			description: "invalid client_secret",
		},
		{
			name:   "post",
			client: withMethod(oidc.ClientAuthMethodPost, nil),
			auth:   &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret},
		},
		{
			name:        "post with basic header",
			client:      withMethod(oidc.ClientAuthMethodPost, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true},
			description: "client_secret_post authentication is required",
		},
		{
			name:        "post without secret",
			client:      withMethod(oidc.ClientAuthMethodPost, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID},
			description: "invalid client_secret",
		},
		{
			name: "tls_client_auth",
			client: withMethod(oidc.ClientAuthMethodTLS, func(c *op.ClientConfiguration) {
				c.TLSClientAuthSubjectDN = "cn=CLIENT-1, o=example"
			}),
			auth: &op.ClientAuthentication{ClientID: testClientID, Certificates: []*x509.Certificate{cert}},
		},
		{
			name: "tls_client_auth without certificate",
			client: withMethod(oidc.ClientAuthMethodTLS, func(c *op.ClientConfiguration) {
				c.TLSClientAuthSubjectDN = "CN=client-1,O=Example"
			}),
			auth:        &op.ClientAuthentication{ClientID: testClientID},
			description: "no client certificate provided",
		},
		{
			name: "tls_client_auth subject mismatch",
			client: withMethod(oidc.ClientAuthMethodTLS, func(c *op.ClientConfiguration) {
				c.TLSClientAuthSubjectDN = "CN=client-1,O=Example"
			}),
			auth:        &op.ClientAuthentication{ClientID: testClientID, Certificates: []*x509.Certificate{other}},
			description: "mTLS client authentication failed",
		},
		{
			name: "self_signed_tls_client_auth",
			client: withMethod(oidc.ClientAuthMethodSelfSignedTLS, func(c *op.ClientConfiguration) {
				c.JWKS = testutil.CertificateJWKS(cert)
			}),
			auth: &op.ClientAuthentication{ClientID: testClientID, Certificates: []*x509.Certificate{cert}},
		},
		{
			name: "self_signed_tls_client_auth unregistered certificate",
			client: withMethod(oidc.ClientAuthMethodSelfSignedTLS, func(c *op.ClientConfiguration) {
				c.JWKS = testutil.CertificateJWKS(cert)
			}),
			auth:        &op.ClientAuthentication{ClientID: testClientID, Certificates: []*x509.Certificate{other}},
			description: "mTLS client authentication failed",
		},
		{
			name: "self_signed_tls_client_auth invalid jwks",
			client: withMethod(oidc.ClientAuthMethodSelfSignedTLS, func(c *op.ClientConfiguration) {
				c.JWKS = "{"
			}),
			auth:        &op.ClientAuthentication{ClientID: testClientID, Certificates: []*x509.Certificate{cert}},
			description: "client jwks is invalid",
		},
		{
			name:   "none",
			client: withMethod(oidc.ClientAuthMethodNone, nil),
			auth:   &op.ClientAuthentication{ClientID: testClientID},
		},
		{
			name:        "none with secret",
			client:      withMethod(oidc.ClientAuthMethodNone, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret},
			description: "public clients must not send a client secret",
		},
		{
			name:        "private_key_jwt is not implemented",
			client:      withMethod(oidc.ClientAuthMethodPrivateKeyJWT, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID},
			description: "client authentication method (private_key_jwt) is not supported",
		},
		{
			name: "method not supported by the server",
			server: func() *op.ServerConfiguration {
				s := testServer()
				s.TokenEndpointAuthMethodsSupported = []oidc.ClientAuthMethod{oidc.ClientAuthMethodPost}
				return s
			}(),
			client:      withMethod(oidc.ClientAuthMethodBasic, nil),
			auth:        &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true},
			description: "client authentication method (client_secret_basic) is not supported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := tt.server
			if server == nil {
				server = testServer()
			}
			err := op.AuthenticateClient(tt.auth, server, tt.client, nil)
			if tt.description == "" {
				assert.NoError(t, err)
				return
			}
			assertOAuthError(t, err, oidc.ErrInvalidClient(), tt.description)
		})
	}
}

func TestClientAuthenticationFromRequest(t *testing.T) {
	form := func(values url.Values) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(values.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.NoError(t, r.ParseForm())
		return r
	}

	t.Run("basic header", func(t *testing.T) {
		r := form(url.Values{})
		r.SetBasicAuth(url.QueryEscape("client:1"), url.QueryEscape("s3cr3t/+"))
		auth, err := op.ClientAuthenticationFromRequest(r, nil)
		require.NoError(t, err)
		assert.Equal(t, "client:1", auth.ClientID)
		assert.Equal(t, "s3cr3t/+", auth.ClientSecret)
		assert.True(t, auth.IsBasic())
		assert.False(t, auth.HasCertificate())
	})

	t.Run("form parameters", func(t *testing.T) {
		r := form(url.Values{oidc.ParamClientID: {testClientID}, oidc.ParamClientSecret: {testSecret}})
		auth, err := op.ClientAuthenticationFromRequest(r, nil)
		require.NoError(t, err)
		assert.Equal(t, testClientID, auth.ClientID)
		assert.Equal(t, testSecret, auth.ClientSecret)
		assert.False(t, auth.IsBasic())
	})

	t.Run("invalid basic escaping", func(t *testing.T) {
		r := form(url.Values{})
		r.SetBasicAuth("%zz", "secret")
		_, err := op.ClientAuthenticationFromRequest(r, nil)
		assertOAuthError(t, err, oidc.ErrInvalidClient(), "invalid basic auth header")
	})

	t.Run("tls peer certificate", func(t *testing.T) {
		cert, _ := testutil.NewCertificate(pkix.Name{CommonName: "client-1"})
		r := form(url.Values{oidc.ParamClientID: {testClientID}})
		r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
		auth, err := op.ClientAuthenticationFromRequest(r, nil)
		require.NoError(t, err)
		assert.True(t, auth.HasCertificate())
		assert.Same(t, cert, auth.Certificates[0])
	})

	t.Run("certificate header from untrusted proxy", func(t *testing.T) {
		r := form(url.Values{oidc.ParamClientID: {testClientID}})
		r.RemoteAddr = "192.0.2.1:4711"
		r.Header.Set("X-Client-Cert", "ignored")
		_, err := op.ClientAuthenticationFromRequest(r, proxyConfig("pem-urlencoded"))
		assertOAuthError(t, err, oidc.ErrInvalidClient(), "invalid client certificate")
	})

	var nilAuth *op.ClientAuthentication
	assert.False(t, nilAuth.IsBasic())
	assert.False(t, nilAuth.HasCertificate())
}
