package oidc

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// RequestObjectClaims is the payload of a signed request object (JAR).
// https://www.rfc-editor.org/rfc/rfc9101#section-4
//
// Only the presence of the registered claims is tracked here.
// Whether they are acceptable is decided by the request object verifier.
type RequestObjectClaims struct {
	Issuer     string   `json:"iss,omitempty"`
	Subject    string   `json:"sub,omitempty"`
	Audience   Audience `json:"aud,omitempty"`
	JWTID      string   `json:"jti,omitempty"`
	Expiration Time     `json:"exp,omitempty"`
	IssuedAt   Time     `json:"iat,omitempty"`
	NotBefore  Time     `json:"nbf,omitempty"`

	ResponseType         ResponseType        `json:"response_type,omitempty"`
	ClientID             string              `json:"client_id,omitempty"`
	RedirectURI          string              `json:"redirect_uri,omitempty"`
	Scope                *string             `json:"scope,omitempty"`
	State                string              `json:"state,omitempty"`
	ResponseMode         ResponseMode        `json:"response_mode,omitempty"`
	Nonce                string              `json:"nonce,omitempty"`
	Display              Display             `json:"display,omitempty"`
	Prompt               string              `json:"prompt,omitempty"`
	MaxAge               *uint64             `json:"max_age,omitempty"`
	UILocales            string              `json:"ui_locales,omitempty"`
	IDTokenHint          string              `json:"id_token_hint,omitempty"`
	LoginHint            string              `json:"login_hint,omitempty"`
	LoginHintToken       string              `json:"login_hint_token,omitempty"`
	ACRValues            string              `json:"acr_values,omitempty"`
	Claims               json.RawMessage     `json:"claims,omitempty"`
	CodeChallenge        string              `json:"code_challenge,omitempty"`
	CodeChallengeMethod  CodeChallengeMethod `json:"code_challenge_method,omitempty"`
	AuthorizationDetails json.RawMessage     `json:"authorization_details,omitempty"`

	// CIBA request object members.
	BindingMessage          string `json:"binding_message,omitempty"`
	UserCode                string `json:"user_code,omitempty"`
	RequestedExpiry         any    `json:"requested_expiry,omitempty"`
	ClientNotificationToken string `json:"client_notification_token,omitempty"`

	// Request and RequestURI must not be present. They are decoded only to be rejected.
	Request    string `json:"request,omitempty"`
	RequestURI string `json:"request_uri,omitempty"`

	// Raw holds every member of the payload, including custom ones.
	Raw map[string]any `json:"-"`
}

// ParseRequestObjectClaims decodes a verified request object payload.
func ParseRequestObjectClaims(payload []byte) (*RequestObjectClaims, error) {
	claims := new(RequestObjectClaims)
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, fmt.Errorf("request object payload: %w", err)
	}
	if err := json.Unmarshal(payload, &claims.Raw); err != nil {
		return nil, fmt.Errorf("request object payload: %w", err)
	}
	return claims, nil
}

func (c *RequestObjectClaims) Has(name string) bool {
	_, ok := c.Raw[name]
	return ok
}

func (c *RequestObjectClaims) HasScope() bool {
	return c.Scope != nil
}

func (c *RequestObjectClaims) Scopes() SpaceDelimitedArray {
	if c.Scope == nil {
		return nil
	}
	return NewSpaceDelimitedArray(*c.Scope)
}

// RequestedExpirySeconds returns requested_expiry, which may be sent
// as a JSON number or string.
func (c *RequestObjectClaims) RequestedExpirySeconds() (int, bool) {
	switch v := c.RequestedExpiry.(type) {
	case float64:
		return clampExpiry(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return clampExpiry(f), true
	default:
		return 0, false
	}
}

func clampExpiry(seconds float64) int {
	switch {
	case seconds >= math.MaxInt32:
		return math.MaxInt32
	case seconds <= 0 || math.IsNaN(seconds):
		return 0
	default:
		return int(seconds)
	}
}

var registeredRequestObjectClaims = map[string]bool{
	"iss": true, "sub": true, "aud": true, "jti": true, "exp": true, "iat": true, "nbf": true,
}

// CustomParameters returns the non protocol members of the request object
// rendered as strings.
func (c *RequestObjectClaims) CustomParameters() url.Values {
	custom := make(url.Values)
	for key, value := range c.Raw {
		if registeredRequestObjectClaims[key] || isProtocolMember(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			custom.Set(key, v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			custom.Set(key, string(b))
		}
	}
	return custom
}

func isProtocolMember(key string) bool {
	if slices.Contains(authorizationParamNames, key) {
		return true
	}
	return strings.HasPrefix(key, "login_hint") || key == "binding_message" ||
		key == "user_code" || key == "requested_expiry" || key == "client_notification_token"
}
