package op

import (
	"context"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/idpserver/idp/pkg/oidc"
)

var (
	ErrJoseParse        = errors.New("request object is not a valid JWS")
	ErrJoseKeyNotFound  = errors.New("no key found to verify request object")
	ErrJoseSignature    = errors.New("request object signature is invalid")
	ErrJoseClientSecret = errors.New("client has no secret for symmetric request object")
)

// JoseContext is a request object after its signature has been verified.
type JoseContext struct {
	Raw       string
	Algorithm string
	KeyID     string
	Claims    *oidc.RequestObjectClaims
}

// Exists reports whether a verified request object is present.
func (j *JoseContext) Exists() bool {
	return j != nil && j.Claims != nil
}

// IsSymmetric reports whether the request object was signed with an HMAC key.
func (j *JoseContext) IsSymmetric() bool {
	return j != nil && oidc.IsSymmetricAlgorithm(j.Algorithm)
}

// VerifyRequestObject parses a compact serialized request object,
// resolves the verification key and checks the signature.
//
// HMAC signed objects are verified with the client secret. Other algorithms
// use the client JWKS first and the tenant JWKS second.
// Claims are not checked here, see [RequestObjectVerifier].
func VerifyRequestObject(ctx context.Context, raw string, server *ServerConfiguration, client *ClientConfiguration) (*JoseContext, error) {
	_, span := tracer.Start(ctx, "VerifyRequestObject")
	defer span.End()

	jws, err := jose.ParseSigned(raw, oidc.SigningAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoseParse, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature, got %d", ErrJoseParse, len(jws.Signatures))
	}
	keyID, alg := oidc.GetKeyIDAndAlg(jws)

	key, err := resolveVerificationKey(keyID, alg, server, client)
	if err != nil {
		return nil, err
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoseSignature, err)
	}
	claims, err := oidc.ParseRequestObjectClaims(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoseParse, err)
	}
	return &JoseContext{
		Raw:       raw,
		Algorithm: alg,
		KeyID:     keyID,
		Claims:    claims,
	}, nil
}

func resolveVerificationKey(keyID, alg string, server *ServerConfiguration, client *ClientConfiguration) (any, error) {
	if oidc.IsSymmetricAlgorithm(alg) {
		if client.ClientSecret == "" {
			return nil, ErrJoseClientSecret
		}
		return []byte(client.ClientSecret), nil
	}
	for _, document := range []string{client.JWKS, server.JWKS} {
		set, err := oidc.ParseJSONWebKeySet(document)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJoseKeyNotFound, err)
		}
		key, err := oidc.FindMatchingKey(keyID, oidc.KeyUseSignature, alg, publicKeys(set.Keys)...)
		if err == nil {
			return key.Key, nil
		}
		if errors.Is(err, oidc.ErrKeyMultiple) {
			return nil, fmt.Errorf("%w: %w", ErrJoseKeyNotFound, err)
		}
	}
	return nil, fmt.Errorf("%w: kid %q alg %s", ErrJoseKeyNotFound, keyID, alg)
}

// publicKeys drops the private parts of keys. A tenant JWKS usually holds
// private signing keys.
func publicKeys(keys []jose.JSONWebKey) []jose.JSONWebKey {
	public := make([]jose.JSONWebKey, 0, len(keys))
	for _, k := range keys {
		if k.IsPublic() {
			public = append(public, k)
			continue
		}
		pub := k.Public()
		if pub.Valid() {
			public = append(public, pub)
		}
	}
	return public
}
