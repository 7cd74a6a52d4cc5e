package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AuthorizationDetail is one element of the Rich Authorization Requests
// `authorization_details` parameter.
// https://www.rfc-editor.org/rfc/rfc9396#section-2
type AuthorizationDetail struct {
	Type       string   `json:"type"`
	Locations  []string `json:"locations,omitempty"`
	Actions    []string `json:"actions,omitempty"`
	DataTypes  []string `json:"datatypes,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	Privileges []string `json:"privileges,omitempty"`

	// Raw holds all members, including the API specific ones.
	Raw map[string]any `json:"-"`
}

func (d *AuthorizationDetail) UnmarshalJSON(data []byte) error {
	type alias AuthorizationDetail
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &a.Raw); err != nil {
		return err
	}
	*d = AuthorizationDetail(a)
	return nil
}

func (d AuthorizationDetail) MarshalJSON() ([]byte, error) {
	if d.Raw != nil {
		return json.Marshal(d.Raw)
	}
	type alias AuthorizationDetail
	return json.Marshal(alias(d))
}

type AuthorizationDetails []AuthorizationDetail

func (a AuthorizationDetails) Types() []string {
	types := make([]string, len(a))
	for i, detail := range a {
		types[i] = detail.Type
	}
	return types
}

func (a AuthorizationDetails) Exists() bool {
	return len(a) > 0
}

var ErrAuthorizationDetailsMalformed = errors.New("authorization_details is malformed")

// ParseAuthorizationDetails parses the raw `authorization_details` value.
// Every element must carry a type.
func ParseAuthorizationDetails(raw string) (AuthorizationDetails, error) {
	if raw == "" {
		return nil, nil
	}
	var details AuthorizationDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, errors.Join(ErrAuthorizationDetailsMalformed, err)
	}
	for i, detail := range details {
		if detail.Type == "" {
			return nil, fmt.Errorf("%w: element %d has no type", ErrAuthorizationDetailsMalformed, i)
		}
	}
	return details, nil
}
