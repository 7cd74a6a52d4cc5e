package op_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/internal/testutil"
	"github.com/idpserver/idp/pkg/op"
)

type testCertOptions struct {
	subject     pkix.Name
	extKeyUsage []x509.ExtKeyUsage
	isCA        bool
	parent      *x509.Certificate
	parentKey   *ecdsa.PrivateKey
}

func generateTestCert(t *testing.T, opts testCertOptions) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               opts.subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           opts.extKeyUsage,
		BasicConstraintsValid: true,
		IsCA:                  opts.isCA,
	}
	if opts.isCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	parent, parentKey := template, key
	if opts.parent != nil && opts.parentKey != nil {
		parent, parentKey = opts.parent, opts.parentKey
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func certToPEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

func proxyConfig(format string) *op.MTLSConfig {
	return &op.MTLSConfig{
		EnableProxyHeaders:      true,
		CertificateHeader:       "X-Client-Cert",
		CertificateHeaderFormat: format,
		TrustedProxyCIDRs:       []string{"10.0.0.0/8"},
	}
}

func TestMTLSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *op.MTLSConfig
		wantErr string
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name:   "direct TLS",
			config: &op.MTLSConfig{TrustStore: x509.NewCertPool()},
		},
		{
			name:   "proxy headers",
			config: proxyConfig("pem-urlencoded"),
		},
		{
			name: "proxy headers without TrustedProxyCIDRs",
			config: &op.MTLSConfig{
				EnableProxyHeaders:      true,
				CertificateHeader:       "X-Client-Cert",
				CertificateHeaderFormat: "pem-urlencoded",
			},
			wantErr: "TrustedProxyCIDRs is required",
		},
		{
			name: "proxy headers without CertificateHeader",
			config: &op.MTLSConfig{
				EnableProxyHeaders:      true,
				CertificateHeaderFormat: "pem-urlencoded",
				TrustedProxyCIDRs:       []string{"10.0.0.0/8"},
			},
			wantErr: "CertificateHeader is required",
		},
		{
			name:    "unsupported format",
			config:  proxyConfig("unknown-format"),
			wantErr: "unsupported CertificateHeaderFormat",
		},
		{
			name: "invalid CIDR",
			config: &op.MTLSConfig{
				EnableProxyHeaders:      true,
				CertificateHeader:       "X-Client-Cert",
				CertificateHeaderFormat: "der-base64",
				TrustedProxyCIDRs:       []string{"10.0.0.0/99"},
			},
			wantErr: "invalid CIDR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClientCertificateFromRequest(t *testing.T) {
	ca, caKey := generateTestCert(t, testCertOptions{subject: pkix.Name{CommonName: "Test CA"}, isCA: true})
	cert, _ := generateTestCert(t, testCertOptions{
		subject:   pkix.Name{CommonName: "test-client"},
		parent:    ca,
		parentKey: caKey,
	})

	tests := []struct {
		name    string
		config  *op.MTLSConfig
		request func(r *http.Request)
		want    int
		wantErr string
	}{
		{
			name:    "no certificate",
			config:  nil,
			request: func(*http.Request) {},
			want:    0,
		},
		{
			name:   "tls chain",
			config: nil,
			request: func(r *http.Request) {
				r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert, ca}}
			},
			want: 2,
		},
		{
			name:   "header ignored when proxy headers are disabled",
			config: &op.MTLSConfig{},
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", url.QueryEscape(certToPEM(cert)))
			},
			want: 0,
		},
		{
			name:   "pem-urlencoded from trusted proxy",
			config: proxyConfig("pem-urlencoded"),
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", url.QueryEscape(certToPEM(cert)))
				r.RemoteAddr = "10.0.0.1:12345"
			},
			want: 1,
		},
		{
			name:   "pem-base64 from trusted proxy",
			config: proxyConfig("pem-base64"),
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", base64.StdEncoding.EncodeToString([]byte(certToPEM(cert))))
				r.RemoteAddr = "10.0.0.1:12345"
			},
			want: 1,
		},
		{
			name:   "der-base64 from trusted proxy",
			config: proxyConfig("der-base64"),
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", base64.StdEncoding.EncodeToString(cert.Raw))
				r.RemoteAddr = "10.0.0.1:12345"
			},
			want: 1,
		},
		{
			name:   "untrusted proxy",
			config: proxyConfig("pem-urlencoded"),
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", url.QueryEscape(certToPEM(cert)))
				r.RemoteAddr = "192.168.1.1:12345"
			},
			wantErr: "not from trusted proxy",
		},
		{
			name:   "invalid header",
			config: proxyConfig("pem-urlencoded"),
			request: func(r *http.Request) {
				r.Header.Set("X-Client-Cert", "not-valid-pem")
				r.RemoteAddr = "10.0.0.1:12345"
			},
			wantErr: "no valid certificates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/tenant/v1/tokens", nil)
			tt.request(r)
			certs, err := op.ClientCertificateFromRequest(r, tt.config)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, certs, tt.want)
			if tt.want > 0 {
				assert.Equal(t, cert.Raw, certs[0].Raw)
			}
		})
	}
}

func TestValidateTLSClientAuth(t *testing.T) {
	ca, caKey := generateTestCert(t, testCertOptions{subject: pkix.Name{CommonName: "Test CA"}, isCA: true})
	cert, _ := generateTestCert(t, testCertOptions{
		subject:     pkix.Name{CommonName: "client.example.com", Organization: []string{"Example"}, Country: []string{"JP"}},
		parent:      ca,
		parentKey:   caKey,
		extKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	trusted := x509.NewCertPool()
	trusted.AddCert(ca)
	untrusted := x509.NewCertPool()
	other, _ := generateTestCert(t, testCertOptions{subject: pkix.Name{CommonName: "Other CA"}, isCA: true})
	untrusted.AddCert(other)

	tests := []struct {
		name       string
		config     *op.MTLSConfig
		expectedDN string
		wantErr    string
	}{
		{
			name:       "exact match",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "CN=client.example.com,O=Example,C=JP",
		},
		{
			name:       "case and whitespace insensitive",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "cn=Client.Example.com, o=example, c=jp",
		},
		{
			name:       "no trust store skips chain verification",
			config:     nil,
			expectedDN: "CN=client.example.com,O=Example,C=JP",
		},
		{
			name:       "different subject",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "CN=other.example.com,O=Example,C=JP",
			wantErr:    "does not match",
		},
		{
			name:       "different order",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "C=JP,O=Example,CN=client.example.com",
			wantErr:    "does not match",
		},
		{
			name:       "untrusted chain",
			config:     &op.MTLSConfig{TrustStore: untrusted},
			expectedDN: "CN=client.example.com,O=Example,C=JP",
			wantErr:    "certificate chain",
		},
		{
			name:       "no registered DN",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "",
			wantErr:    "no registered tls_client_auth_subject_dn",
		},
		{
			name:       "invalid registered DN",
			config:     &op.MTLSConfig{TrustStore: trusted},
			expectedDN: "not a dn",
			wantErr:    "invalid expected DN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := op.ValidateTLSClientAuth([]*x509.Certificate{cert}, tt.config, tt.expectedDN)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateSelfSignedTLSClientAuth(t *testing.T) {
	registered, _ := testutil.NewCertificate(pkix.Name{CommonName: "registered"})
	other, _ := testutil.NewCertificate(pkix.Name{CommonName: "registered"})
	keys := testutil.CertificateJWKS(registered)

	set, err := oidcKeySet(keys)
	require.NoError(t, err)

	assert.NoError(t, op.ValidateSelfSignedTLSClientAuth(registered, set))
	assert.Error(t, op.ValidateSelfSignedTLSClientAuth(other, set))
	assert.Error(t, op.ValidateSelfSignedTLSClientAuth(nil, set))
}

func TestCalculateCertThumbprint(t *testing.T) {
	cert, _ := testutil.NewCertificate(pkix.Name{CommonName: "client"})
	thumbprint := op.CalculateCertThumbprint(cert)
	assert.Len(t, thumbprint, 43)
	assert.Equal(t, thumbprint, op.CalculateCertThumbprint(cert))
}
