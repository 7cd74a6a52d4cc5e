package oidc

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Audience is the `aud` claim. It unmarshals from a single string
// or an array of strings.
type Audience []string

func (a *Audience) UnmarshalJSON(text []byte) error {
	var i any
	err := json.Unmarshal(text, &i)
	if err != nil {
		return err
	}
	switch aud := i.(type) {
	case []any:
		*a = make([]string, 0, len(aud))
		for _, audience := range aud {
			s, ok := audience.(string)
			if !ok {
				return fmt.Errorf("aud: unexpected element type %T", audience)
			}
			*a = append(*a, s)
		}
	case string:
		*a = []string{aud}
	case nil:
		*a = nil
	default:
		return fmt.Errorf("aud: unexpected type %T", i)
	}
	return nil
}

// Contains reports whether value is one of the audiences.
func (a Audience) Contains(value string) bool {
	return slices.Contains(a, value)
}

// SpaceDelimitedArray is a list transported as a single space delimited string,
// such as `scope`, `prompt` or `acr_values`.
type SpaceDelimitedArray []string

func NewSpaceDelimitedArray(s string) SpaceDelimitedArray {
	return strings.Fields(s)
}

func (s SpaceDelimitedArray) String() string {
	return strings.Join(s, " ")
}

func (s SpaceDelimitedArray) Contains(value string) bool {
	return slices.Contains(s, value)
}

func (s SpaceDelimitedArray) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SpaceDelimitedArray) UnmarshalText(text []byte) error {
	*s = strings.Fields(string(text))
	return nil
}

func (s SpaceDelimitedArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SpaceDelimitedArray) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = strings.Fields(str)
	return nil
}

type Display string

const (
	DisplayPage  Display = "page"
	DisplayPopup Display = "popup"
	DisplayTouch Display = "touch"
	DisplayWAP   Display = "wap"
)

// UnmarshalText ignores unknown display values.
func (d *Display) UnmarshalText(text []byte) error {
	display := Display(text)
	switch display {
	case DisplayPage, DisplayPopup, DisplayTouch, DisplayWAP:
		*d = display
	}
	return nil
}

// Locales is the `ui_locales` parameter. Unparsable tags are dropped.
type Locales []language.Tag

func ParseLocales(locales []string) Locales {
	out := make(Locales, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err == nil && !tag.IsRoot() {
			out = append(out, tag)
		}
	}
	return out
}

func (l *Locales) UnmarshalText(text []byte) error {
	*l = ParseLocales(strings.Fields(string(text)))
	return nil
}

func (l Locales) MarshalText() ([]byte, error) {
	tags := make([]string, len(l))
	for i, tag := range l {
		tags[i] = tag.String()
	}
	return []byte(strings.Join(tags, " ")), nil
}

type Prompt SpaceDelimitedArray

const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
	PromptCreate        = "create"
)

type ResponseType string

const (
	ResponseTypeCode            ResponseType = "code"
	ResponseTypeIDToken         ResponseType = "id_token token"
	ResponseTypeIDTokenOnly     ResponseType = "id_token"
	ResponseTypeCodeIDToken     ResponseType = "code id_token"
	ResponseTypeCodeToken       ResponseType = "code token"
	ResponseTypeCodeIDTokenFull ResponseType = "code id_token token"
	ResponseTypeToken           ResponseType = "token"
	ResponseTypeNone            ResponseType = "none"
)

// Normalize orders the space separated values of the response type,
// so that "id_token code" equals "code id_token".
func (r ResponseType) Normalize() ResponseType {
	values := strings.Fields(string(r))
	rank := func(v string) int {
		switch v {
		case "code":
			return 0
		case "id_token":
			return 1
		case "token":
			return 2
		default:
			return 3
		}
	}
	slices.SortStableFunc(values, func(a, b string) int { return rank(a) - rank(b) })
	return ResponseType(strings.Join(values, " "))
}

// ContainsIDToken reports whether an id_token is requested.
func (r ResponseType) ContainsIDToken() bool {
	return slices.Contains(strings.Fields(string(r)), "id_token")
}

type ResponseMode string

const (
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
	ResponseModeJWT      ResponseMode = "jwt"
)

type CodeChallengeMethod string

const (
	CodeChallengeMethodPlain CodeChallengeMethod = "plain"
	CodeChallengeMethodS256  CodeChallengeMethod = "S256"
)

// Time is a NumericDate (seconds since epoch).
type Time int64

func FromTime(tt time.Time) Time {
	if tt.IsZero() {
		return 0
	}
	return Time(tt.Unix())
}

func (ts Time) AsTime() time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

func (ts *Time) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("oidc.Time: %w", err)
	}
	switch x := v.(type) {
	case float64:
		*ts = Time(x)
	case nil:
		*ts = 0
	default:
		return fmt.Errorf("oidc.Time: unable to parse type %T with value %v", x, x)
	}
	return nil
}
