package oidc

import (
	"encoding/json"
	"errors"
	"slices"
)

// ClaimRequest is a single entry of the `claims` request parameter.
// https://openid.net/specs/openid-connect-core-1_0.html#IndividualClaimsRequests
type ClaimRequest struct {
	Essential bool     `json:"essential,omitempty"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
}

// RequestedClaimsPayload is the parsed `claims` request parameter.
type RequestedClaimsPayload struct {
	UserInfo map[string]*ClaimRequest `json:"userinfo,omitempty"`
	IDToken  map[string]*ClaimRequest `json:"id_token,omitempty"`
}

func (p RequestedClaimsPayload) IsEmpty() bool {
	return len(p.UserInfo) == 0 && len(p.IDToken) == 0
}

// IDTokenClaimNames returns the claim names requested for the ID token, sorted.
func (p RequestedClaimsPayload) IDTokenClaimNames() []string {
	names := make([]string, 0, len(p.IDToken))
	for name := range p.IDToken {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var ErrClaimsMalformed = errors.New("claims parameter is not a JSON object")

// ParseRequestedClaims parses the raw `claims` value.
// An empty value yields an empty payload and no error.
func ParseRequestedClaims(raw string) (RequestedClaimsPayload, error) {
	var payload RequestedClaimsPayload
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return RequestedClaimsPayload{}, errors.Join(ErrClaimsMalformed, err)
	}
	return payload, nil
}
