package op

import (
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

type CibaGrantStatus string

const (
	CibaGrantStatusPending    CibaGrantStatus = "PENDING"
	CibaGrantStatusAuthorized CibaGrantStatus = "AUTHORIZED"
	CibaGrantStatusDenied     CibaGrantStatus = "DENIED"
)

// Authentication is the authentication event attached when the user
// completes a backchannel authentication.
type Authentication struct {
	Time    time.Time `json:"time"`
	Methods []string  `json:"methods,omitempty"`
	ACR     string    `json:"acr,omitempty"`
}

// AuthorizationGrant is what a token may be issued for.
type AuthorizationGrant struct {
	Tenant               string                      `json:"tenant"`
	Subject              string                      `json:"subject,omitempty"`
	Authentication       *Authentication             `json:"authentication,omitempty"`
	ClientID             string                      `json:"client_id"`
	Scopes               oidc.SpaceDelimitedArray    `json:"scopes"`
	Claims               oidc.RequestedClaimsPayload `json:"claims"`
	CustomProperties     map[string]any              `json:"custom_properties,omitempty"`
	AuthorizationDetails oidc.AuthorizationDetails   `json:"authorization_details,omitempty"`
}

// CibaGrant tracks one backchannel authentication until a token has been
// issued for it. Interval and ExpiresAt are fixed at creation.
type CibaGrant struct {
	BackchannelAuthenticationRequestID string             `json:"backchannel_authentication_request_id"`
	Tenant                             string             `json:"tenant"`
	AuthReqID                          string             `json:"auth_req_id"`
	Grant                              AuthorizationGrant `json:"grant"`
	Interval                           time.Duration      `json:"interval"`
	ExpiresAt                          time.Time          `json:"expires_at"`
	Status                             CibaGrantStatus    `json:"status"`
	CreatedAt                          time.Time          `json:"created_at"`
}

// NewCibaGrant creates the PENDING grant for an accepted backchannel request.
func NewCibaGrant(request *BackchannelAuthenticationRequest, authReqID string) *CibaGrant {
	return &CibaGrant{
		BackchannelAuthenticationRequestID: request.ID,
		Tenant:                             request.Tenant,
		AuthReqID:                          authReqID,
		Grant: AuthorizationGrant{
			Tenant:               request.Tenant,
			ClientID:             request.ClientID,
			Scopes:               request.Scopes,
			Claims:               request.ClaimsPayload,
			AuthorizationDetails: request.AuthorizationDetails,
		},
		Interval:  request.Interval,
		ExpiresAt: request.ExpiresAt,
		Status:    CibaGrantStatusPending,
		CreatedAt: request.CreatedAt,
	}
}

// IsExpired reports whether now is past ExpiresAt.
func (g *CibaGrant) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

func (g *CibaGrant) IsPending() bool {
	return g.Status == CibaGrantStatusPending
}

// Authorize returns a copy of the grant in AUTHORIZED status.
func (g *CibaGrant) Authorize(subject string, authentication *Authentication, customProperties map[string]any) *CibaGrant {
	next := *g
	next.Status = CibaGrantStatusAuthorized
	next.Grant.Subject = subject
	next.Grant.Authentication = authentication
	next.Grant.CustomProperties = customProperties
	return &next
}

// Deny returns a copy of the grant in DENIED status.
func (g *CibaGrant) Deny() *CibaGrant {
	next := *g
	next.Status = CibaGrantStatusDenied
	return &next
}

// ExpiredCibaGrantRetention is how long a grant is kept after it expired,
// so that late polls are answered with expired_token.
const ExpiredCibaGrantRetention = 10 * time.Minute

// TTL returns how long the grant has to be kept from now.
func (g *CibaGrant) TTL(now time.Time) time.Duration {
	return g.ExpiresAt.Add(ExpiredCibaGrantRetention).Sub(now)
}
