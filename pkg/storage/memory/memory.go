// Package memory is an in-process implementation of op.Storage and
// op.ConfigurationRepository. It is meant for development, tests and single
// instance deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/idpserver/idp/pkg/op"
)

const DefaultCleanupInterval = time.Minute

type key struct {
	tenant string
	id     string
}

type jtiKey struct {
	tenant   string
	clientID string
	jti      string
}

type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Storage keeps every aggregate in mutex guarded maps. CIBA grant
// transitions run under the same lock as reads, which makes them atomic.
type Storage struct {
	mu  sync.RWMutex
	now func() time.Time

	servers map[string]*op.ServerConfiguration
	clients map[key]*op.ClientConfiguration

	authorizationRequests map[key]*timedEntry[*op.AuthorizationRequest]
	backchannelRequests   map[key]*timedEntry[*op.BackchannelAuthenticationRequest]
	cibaGrants            map[key]*timedEntry[*op.CibaGrant]
	jtis                  map[jtiKey]time.Time
	polls                 map[key]time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

type Option func(*Storage)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// WithCleanupInterval sets how often expired entries are removed. A
// non-positive interval disables the background cleanup.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Storage) {
		s.cleanupInterval = interval
	}
}

// NewStorage creates an empty storage and starts the cleanup goroutine,
// Close stops it.
func NewStorage(opts ...Option) *Storage {
	s := &Storage{
		now:                   time.Now,
		servers:               make(map[string]*op.ServerConfiguration),
		clients:               make(map[key]*op.ClientConfiguration),
		authorizationRequests: make(map[key]*timedEntry[*op.AuthorizationRequest]),
		backchannelRequests:   make(map[key]*timedEntry[*op.BackchannelAuthenticationRequest]),
		cibaGrants:            make(map[key]*timedEntry[*op.CibaGrant]),
		jtis:                  make(map[jtiKey]time.Time),
		polls:                 make(map[key]time.Time),
		cleanupInterval:       DefaultCleanupInterval,
		stopCleanup:           make(chan struct{}),
		cleanupDone:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	} else {
		close(s.cleanupDone)
	}
	return s
}

func (s *Storage) Close() error {
	select {
	case <-s.stopCleanup:
	default:
		close(s.stopCleanup)
	}
	<-s.cleanupDone
	return nil
}

func (s *Storage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *Storage) cleanupExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	deleteExpired(s.authorizationRequests, now)
	deleteExpired(s.backchannelRequests, now)
	deleteExpired(s.cibaGrants, now)
	for k, exp := range s.jtis {
		if !now.Before(exp) {
			delete(s.jtis, k)
		}
	}
	for k, next := range s.polls {
		if _, ok := s.cibaGrants[k]; !ok && !now.Before(next) {
			delete(s.polls, k)
		}
	}
}

func deleteExpired[T any](m map[key]*timedEntry[T], now time.Time) {
	for k, e := range m {
		if e.expired(now) {
			delete(m, k)
		}
	}
}

// AddServer registers or replaces the configuration of a tenant.
func (s *Storage) AddServer(server *op.ServerConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[server.TenantID] = server
}

// AddClient registers or replaces a client of its tenant.
func (s *Storage) AddClient(client *op.ClientConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[key{client.TenantID, client.ClientID}] = client
}

func (s *Storage) ServerConfiguration(_ context.Context, tenant string) (*op.ServerConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[tenant]
	if !ok {
		return nil, op.ErrNotFound
	}
	cp := *server
	return &cp, nil
}

func (s *Storage) ClientConfiguration(_ context.Context, tenant, clientID string) (*op.ClientConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[key{tenant, clientID}]
	if !ok {
		return nil, op.ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (s *Storage) RegisterAuthorizationRequest(_ context.Context, request *op.AuthorizationRequest) error {
	return register(s, s.authorizationRequests, key{request.Tenant, request.ID}, request, request.ExpiresAt)
}

func (s *Storage) AuthorizationRequest(_ context.Context, tenant, id string) (*op.AuthorizationRequest, error) {
	return lookup(s, s.authorizationRequests, key{tenant, id})
}

func (s *Storage) RegisterBackchannelAuthenticationRequest(_ context.Context, request *op.BackchannelAuthenticationRequest) error {
	return register(s, s.backchannelRequests, key{request.Tenant, request.ID}, request, request.ExpiresAt.Add(op.ExpiredCibaGrantRetention))
}

func (s *Storage) BackchannelAuthenticationRequest(_ context.Context, tenant, id string) (*op.BackchannelAuthenticationRequest, error) {
	return lookup(s, s.backchannelRequests, key{tenant, id})
}

func (s *Storage) RegisterCibaGrant(_ context.Context, grant *op.CibaGrant) error {
	return register(s, s.cibaGrants, key{grant.Tenant, grant.AuthReqID}, grant, grant.ExpiresAt.Add(op.ExpiredCibaGrantRetention))
}

func (s *Storage) CibaGrant(_ context.Context, tenant, authReqID string) (*op.CibaGrant, error) {
	return lookup(s, s.cibaGrants, key{tenant, authReqID})
}

func (s *Storage) TransitionCibaGrant(_ context.Context, grant *op.CibaGrant, from op.CibaGrantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{grant.Tenant, grant.AuthReqID}
	e, ok := s.cibaGrants[k]
	if !ok || e.expired(s.now()) {
		return op.ErrNotFound
	}
	if e.value.Status != from {
		return op.ErrConflict
	}
	cp := *grant
	e.value = &cp
	return nil
}

func (s *Storage) ConsumeCibaGrant(_ context.Context, tenant, authReqID string) (*op.CibaGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{tenant, authReqID}
	e, ok := s.cibaGrants[k]
	if !ok || e.expired(s.now()) || e.value.Status != op.CibaGrantStatusAuthorized {
		return nil, op.ErrNotFound
	}
	delete(s.cibaGrants, k)
	delete(s.polls, k)
	return e.value, nil
}

func (s *Storage) DeleteCibaGrant(_ context.Context, tenant, authReqID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{tenant, authReqID}
	if _, ok := s.cibaGrants[k]; !ok {
		return op.ErrNotFound
	}
	delete(s.cibaGrants, k)
	delete(s.polls, k)
	return nil
}

func (s *Storage) UseJTI(_ context.Context, tenant, clientID, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := jtiKey{tenant, clientID, jti}
	if exp, ok := s.jtis[k]; ok && s.now().Before(exp) {
		return op.ErrConflict
	}
	s.jtis[k] = expiresAt
	return nil
}

func (s *Storage) AllowPoll(_ context.Context, tenant, authReqID string, interval time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	k := key{tenant, authReqID}
	if next, ok := s.polls[k]; ok && now.Before(next) {
		return false, nil
	}
	s.polls[k] = now.Add(interval)
	return true, nil
}

func register[T any](s *Storage, m map[key]*timedEntry[*T], k key, value *T, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := m[k]; ok && !e.expired(s.now()) {
		return op.ErrConflict
	}
	cp := *value
	m[k] = &timedEntry[*T]{value: &cp, expiresAt: expiresAt}
	return nil
}

func lookup[T any](s *Storage, m map[key]*timedEntry[*T], k key) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := m[k]
	if !ok || e.expired(s.now()) {
		return nil, op.ErrNotFound
	}
	cp := *e.value
	return &cp, nil
}

var (
	_ op.Storage                 = (*Storage)(nil)
	_ op.ConfigurationRepository = (*Storage)(nil)
)
