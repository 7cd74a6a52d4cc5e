package op

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	jose "github.com/go-jose/go-jose/v4"
)

// MTLSConfig controls how client certificates are read from requests.
type MTLSConfig struct {
	// TrustStore verifies tls_client_auth certificate chains. A nil pool
	// skips chain verification, for deployments where the TLS terminator
	// already verified the chain.
	TrustStore *x509.CertPool

	// EnableProxyHeaders reads the certificate from CertificateHeader
	// instead of the TLS connection, for requests from TrustedProxyCIDRs only.
	EnableProxyHeaders bool
	CertificateHeader  string
	// CertificateHeaderFormat is one of "pem-urlencoded", "pem-base64" or "der-base64".
	CertificateHeaderFormat string
	TrustedProxyCIDRs       []string

	parsedCIDRs []*net.IPNet
	cidrOnce    sync.Once
	cidrErr     error
}

func (c *MTLSConfig) ensureParsedCIDRs() error {
	c.cidrOnce.Do(func() {
		c.parsedCIDRs = make([]*net.IPNet, 0, len(c.TrustedProxyCIDRs))
		for _, cidr := range c.TrustedProxyCIDRs {
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				c.cidrErr = fmt.Errorf("invalid CIDR %q: %w", cidr, err)
				return
			}
			c.parsedCIDRs = append(c.parsedCIDRs, ipNet)
		}
	})
	return c.cidrErr
}

// Validate checks the configuration at startup.
func (c *MTLSConfig) Validate() error {
	if c == nil || !c.EnableProxyHeaders {
		return nil
	}
	if len(c.TrustedProxyCIDRs) == 0 {
		return errors.New("TrustedProxyCIDRs is required when EnableProxyHeaders is true")
	}
	if c.CertificateHeader == "" {
		return errors.New("CertificateHeader is required when EnableProxyHeaders is true")
	}
	switch c.CertificateHeaderFormat {
	case "pem-urlencoded", "pem-base64", "der-base64":
	default:
		return fmt.Errorf("unsupported CertificateHeaderFormat %q", c.CertificateHeaderFormat)
	}
	return c.ensureParsedCIDRs()
}

// ClientCertificateFromRequest returns the client certificate chain, leaf first.
// It returns nil without error when no certificate was presented.
func ClientCertificateFromRequest(r *http.Request, config *MTLSConfig) ([]*x509.Certificate, error) {
	if config != nil && config.EnableProxyHeaders {
		headerValue := r.Header.Get(config.CertificateHeader)
		if headerValue == "" {
			return nil, nil
		}
		if err := config.ensureParsedCIDRs(); err != nil {
			return nil, err
		}
		if !isFromTrustedProxy(r.RemoteAddr, config) {
			return nil, errors.New("request not from trusted proxy")
		}
		return parseCertificateFromHeader(headerValue, config.CertificateHeaderFormat)
	}
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, nil
	}
	return r.TLS.PeerCertificates, nil
}

func isFromTrustedProxy(remoteAddr string, config *MTLSConfig) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil {
		return false
	}
	for _, ipNet := range config.parsedCIDRs {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseCertificateFromHeader(headerValue, format string) ([]*x509.Certificate, error) {
	switch format {
	case "pem-urlencoded":
		decoded, err := url.QueryUnescape(headerValue)
		if err != nil {
			return nil, fmt.Errorf("failed to URL-decode certificate: %w", err)
		}
		return parsePEMCertificates([]byte(decoded))
	case "pem-base64":
		decoded, err := base64.StdEncoding.DecodeString(headerValue)
		if err != nil {
			return nil, fmt.Errorf("failed to base64-decode certificate: %w", err)
		}
		return parsePEMCertificates(decoded)
	case "der-base64":
		decoded, err := base64.StdEncoding.DecodeString(headerValue)
		if err != nil {
			return nil, fmt.Errorf("failed to base64-decode DER certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(decoded)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DER certificate: %w", err)
		}
		return []*x509.Certificate{cert}, nil
	default:
		return nil, fmt.Errorf("unsupported certificate header format: %s", format)
	}
}

func parsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			certs = append(certs, cert)
		}
		pemData = rest
	}
	if len(certs) == 0 {
		return nil, errors.New("no valid certificates found in PEM data")
	}
	return certs, nil
}

// CalculateCertThumbprint returns the x5t#S256 thumbprint of cert.
func CalculateCertThumbprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// ValidateTLSClientAuth checks the chain against the trust store and
// the leaf subject against the registered RFC 4514 distinguished name.
func ValidateTLSClientAuth(certs []*x509.Certificate, config *MTLSConfig, expectedDN string) error {
	if len(certs) == 0 {
		return errors.New("no client certificate provided")
	}
	if expectedDN == "" {
		return errors.New("client has no registered tls_client_auth_subject_dn")
	}
	leaf := certs[0]
	if config != nil && config.TrustStore != nil {
		intermediates := x509.NewCertPool()
		for _, cert := range certs[1:] {
			intermediates.AddCert(cert)
		}
		_, err := leaf.Verify(x509.VerifyOptions{
			Roots:         config.TrustStore,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		})
		if err != nil {
			return fmt.Errorf("certificate chain: %w", err)
		}
	}
	return matchSubjectDN(leaf, expectedDN)
}

func matchSubjectDN(cert *x509.Certificate, expectedDN string) error {
	expected, err := ldap.ParseDN(expectedDN)
	if err != nil {
		return fmt.Errorf("invalid expected DN: %w", err)
	}
	actual, err := ldap.ParseDN(cert.Subject.String())
	if err != nil {
		return fmt.Errorf("invalid certificate subject: %w", err)
	}
	if !expected.EqualFold(actual) {
		return errors.New("certificate subject does not match expected DN")
	}
	return nil
}

// ValidateSelfSignedTLSClientAuth matches the leaf certificate against the
// x5c certificates of the client JWKS.
func ValidateSelfSignedTLSClientAuth(cert *x509.Certificate, keys []jose.JSONWebKey) error {
	if cert == nil {
		return errors.New("nil certificate")
	}
	thumbprint := CalculateCertThumbprint(cert)
	for _, key := range keys {
		for _, registered := range key.Certificates {
			if CalculateCertThumbprint(registered) == thumbprint {
				return nil
			}
		}
	}
	return errors.New("no matching registered certificate")
}
