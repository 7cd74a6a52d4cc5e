package oidc

// Backchannel authentication endpoint parameter names.
const (
	ParamBindingMessage          = "binding_message"
	ParamUserCode                = "user_code"
	ParamRequestedExpiry         = "requested_expiry"
	ParamClientNotificationToken = "client_notification_token"
)

// MaxBindingMessageLength is the longest binding_message accepted.
const MaxBindingMessageLength = 20

// BackchannelAuthenticationParameters are the parameters of a request
// to the backchannel authentication endpoint.
// https://openid.net/specs/openid-client-initiated-backchannel-authentication-core-1_0.html#auth_request
//
// Client authentication is not part of this struct. It is read from
// HTTP Basic, the form or the TLS client certificate.
type BackchannelAuthenticationParameters struct {
	Scopes                  SpaceDelimitedArray `schema:"scope"`
	ClientNotificationToken string              `schema:"client_notification_token"`
	ACRValues               SpaceDelimitedArray `schema:"acr_values"`
	LoginHintToken          string              `schema:"login_hint_token"`
	IDTokenHint             string              `schema:"id_token_hint"`
	LoginHint               string              `schema:"login_hint"`
	BindingMessage          string              `schema:"binding_message"`
	UserCode                string              `schema:"user_code"`
	RequestedExpiry         *int                `schema:"requested_expiry"`
	AuthorizationDetails    string              `schema:"authorization_details"`
	Request                 string              `schema:"request"`
	ClientID                string              `schema:"client_id"`
}

// HasAnyHint reports whether one of login_hint, login_hint_token or id_token_hint is set.
func (p *BackchannelAuthenticationParameters) HasAnyHint() bool {
	return p.LoginHint != "" || p.LoginHintToken != "" || p.IDTokenHint != ""
}

// BackchannelAuthenticationResponse is the successful response of the
// backchannel authentication endpoint.
type BackchannelAuthenticationResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int    `json:"expires_in"`
	Interval  int    `json:"interval,omitempty"`
}
