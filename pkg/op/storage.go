package op

import (
	"context"
	"errors"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

var (
	// ErrNotFound is returned by repositories for unknown keys.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by repositories when a conditional write lost a race
	// or a key is already taken.
	ErrConflict = errors.New("conflict")
)

// ConfigurationRepository resolves tenant scoped configuration.
type ConfigurationRepository interface {
	ServerConfiguration(ctx context.Context, tenant string) (*ServerConfiguration, error)
	ClientConfiguration(ctx context.Context, tenant, clientID string) (*ClientConfiguration, error)
}

type AuthorizationRequestRepository interface {
	RegisterAuthorizationRequest(ctx context.Context, request *AuthorizationRequest) error
	AuthorizationRequest(ctx context.Context, tenant, id string) (*AuthorizationRequest, error)
}

type BackchannelAuthenticationRequestRepository interface {
	RegisterBackchannelAuthenticationRequest(ctx context.Context, request *BackchannelAuthenticationRequest) error
	BackchannelAuthenticationRequest(ctx context.Context, tenant, id string) (*BackchannelAuthenticationRequest, error)
}

// CibaGrantRepository persists CIBA grants keyed by tenant and auth_req_id.
// Implementations must make TransitionCibaGrant and ConsumeCibaGrant atomic
// per auth_req_id, so that a grant is issued from at most once.
type CibaGrantRepository interface {
	RegisterCibaGrant(ctx context.Context, grant *CibaGrant) error
	CibaGrant(ctx context.Context, tenant, authReqID string) (*CibaGrant, error)
	// TransitionCibaGrant replaces the stored grant with grant if the stored
	// status equals from. It returns ErrConflict otherwise.
	TransitionCibaGrant(ctx context.Context, grant *CibaGrant, from CibaGrantStatus) error
	// ConsumeCibaGrant deletes and returns the grant if it is authorized.
	// It returns ErrNotFound if there is no authorized grant.
	ConsumeCibaGrant(ctx context.Context, tenant, authReqID string) (*CibaGrant, error)
	DeleteCibaGrant(ctx context.Context, tenant, authReqID string) error
}

// JTIStore remembers request object identifiers until they expire.
type JTIStore interface {
	// UseJTI records jti for the tenant and client. It returns ErrConflict
	// if the jti was recorded before and has not expired yet.
	UseJTI(ctx context.Context, tenant, clientID, jti string, expiresAt time.Time) error
}

// PollLimiter enforces the CIBA polling interval.
type PollLimiter interface {
	// AllowPoll reports false if the previous poll for authReqID happened
	// less than interval ago.
	AllowPoll(ctx context.Context, tenant, authReqID string, interval time.Duration) (bool, error)
}

// RequestObjectFetcher retrieves the request object referenced by a request_uri.
type RequestObjectFetcher interface {
	Fetch(ctx context.Context, requestURI string) (string, error)
}

// TokenIssuer mints tokens once a token request has been validated.
// grant is set for grant types that carry one, such as CIBA.
type TokenIssuer interface {
	IssueToken(ctx context.Context, request *TokenRequestContext, grant *AuthorizationGrant) (*oidc.AccessTokenResponse, error)
}

// Storage bundles the repositories the request pipeline writes to.
type Storage interface {
	AuthorizationRequestRepository
	BackchannelAuthenticationRequestRepository
	CibaGrantRepository
	JTIStore
	PollLimiter
}
