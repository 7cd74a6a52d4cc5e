package oidc

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	KeyUseSignature = "sig"
)

var (
	ErrKeyMultiple = errors.New("multiple possible keys match")
	ErrKeyNone     = errors.New("no possible keys matches")
)

// SigningAlgorithms are accepted when parsing a request object.
// `none` is never part of it.
var SigningAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
	jose.HS256, jose.HS384, jose.HS512,
}

// IsSymmetricAlgorithm reports whether alg is an HMAC algorithm.
func IsSymmetricAlgorithm(alg string) bool {
	return strings.HasPrefix(alg, "HS")
}

// IsFapiAlgorithm reports whether alg is permitted by the FAPI profiles.
func IsFapiAlgorithm(alg string) bool {
	return slices.Contains([]string{string(jose.PS256), string(jose.ES256)}, alg)
}

// GetKeyIDAndAlg returns the `kid` and `alg` claim from the JWS header
func GetKeyIDAndAlg(jws *jose.JSONWebSignature) (string, string) {
	keyID := ""
	alg := ""
	for _, sig := range jws.Signatures {
		keyID = sig.Header.KeyID
		alg = sig.Header.Algorithm
		break
	}
	return keyID, alg
}

// ParseJSONWebKeySet parses a JWKS document. An empty document is an empty set.
func ParseJSONWebKeySet(document string) (jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	if strings.TrimSpace(document) == "" {
		return set, nil
	}
	if err := json.Unmarshal([]byte(document), &set); err != nil {
		return set, fmt.Errorf("jwks: %w", err)
	}
	return set, nil
}

// FindMatchingKey searches the given JSON Web Keys for the requested key ID, usage and alg type
//
// will return the key immediately if matches exact (id, usage, type)
//
// will return a specific error if none (ErrKeyNone) or multiple (ErrKeyMultiple) match
func FindMatchingKey(keyID, use, expectedAlg string, keys ...jose.JSONWebKey) (key jose.JSONWebKey, err error) {
	var validKeys []jose.JSONWebKey
	for _, k := range keys {
		// ignore all keys with wrong use (let empty use of published key pass)
		if k.Use != use && k.Use != "" {
			continue
		}
		// ignore all keys with wrong algorithm type
		if !algToKeyType(k.Key, expectedAlg) {
			continue
		}
		// a key that pins its algorithm must pin the one of the token
		if k.Algorithm != "" && k.Algorithm != expectedAlg {
			continue
		}
		if k.KeyID == keyID && keyID != "" {
			return k, nil
		}
		if k.KeyID == "" || keyID == "" {
			validKeys = append(validKeys, k)
		}
	}
	if len(validKeys) == 1 {
		return validKeys[0], nil
	}
	if len(validKeys) > 1 {
		return key, ErrKeyMultiple
	}
	return key, ErrKeyNone
}

func algToKeyType(key any, alg string) bool {
	if alg == "" {
		return false
	}
	switch alg[0] {
	case 'R', 'P':
		_, ok := key.(*rsa.PublicKey)
		return ok
	case 'E':
		if alg == string(jose.EdDSA) {
			_, ok := key.(ed25519.PublicKey)
			return ok
		}
		_, ok := key.(*ecdsa.PublicKey)
		return ok
	default:
		return false
	}
}
