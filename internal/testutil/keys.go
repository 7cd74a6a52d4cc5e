// Package testutil signs request objects and creates client certificates
// for tests.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// KeySet is one signing key together with its public JWKS document.
type KeySet struct {
	KeyID     string
	Algorithm jose.SignatureAlgorithm
	Private   any
	Public    any
}

// NewKeySet generates a key for alg. RSA keys serve RS* and PS*, P-256
// keys serve ES256.
func NewKeySet(alg jose.SignatureAlgorithm, keyID string) *KeySet {
	switch alg {
	case jose.ES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			panic(err)
		}
		return &KeySet{KeyID: keyID, Algorithm: alg, Private: key, Public: &key.PublicKey}
	case jose.RS256, jose.RS384, jose.RS512, jose.PS256, jose.PS384, jose.PS512:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		return &KeySet{KeyID: keyID, Algorithm: alg, Private: key, Public: &key.PublicKey}
	default:
		panic("testutil: unsupported algorithm " + string(alg))
	}
}

// NewHMACKeySet signs with secret, which must be at least as long as the
// hash output of alg.
func NewHMACKeySet(alg jose.SignatureAlgorithm, secret string) *KeySet {
	return &KeySet{Algorithm: alg, Private: []byte(secret)}
}

// JWKS returns the public key as a JWKS document. HMAC key sets return an
// empty set.
func (k *KeySet) JWKS() string {
	set := jose.JSONWebKeySet{}
	if k.Public != nil {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Public,
			KeyID:     k.KeyID,
			Algorithm: string(k.Algorithm),
			Use:       "sig",
		})
	}
	data, err := json.Marshal(set)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// Sign returns claims as a compact serialized JWS.
func (k *KeySet) Sign(claims map[string]any) string {
	opts := new(jose.SignerOptions).WithType("oauth-authz-req+jwt")
	if k.KeyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), k.KeyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: k.Algorithm, Key: k.Private}, opts)
	if err != nil {
		panic(err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	object, err := signer.Sign(payload)
	if err != nil {
		panic(err)
	}
	token, err := object.CompactSerialize()
	if err != nil {
		panic(err)
	}
	return token
}

// RequestObjectClaims returns a complete set of request object claims
// issued by clientID for audience, valid for lifetime from now. Callers
// add or delete members as needed.
func RequestObjectClaims(clientID, audience string, now time.Time, lifetime time.Duration) map[string]any {
	return map[string]any{
		"iss": clientID,
		"aud": audience,
		"jti": rand.Text(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	}
}

// NewCertificate creates a self-signed client certificate for subject.
func NewCertificate(subject pkix.Name) (*x509.Certificate, crypto.Signer) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return cert, key
}

// CertificateJWKS returns a JWKS document holding cert in x5c.
func CertificateJWKS(cert *x509.Certificate) string {
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:          cert.PublicKey,
		Certificates: []*x509.Certificate{cert},
		Use:          "sig",
	}}}
	data, err := json.Marshal(set)
	if err != nil {
		panic(err)
	}
	return string(data)
}
