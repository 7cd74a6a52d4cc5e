package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/pkg/oidc"
	"github.com/idpserver/idp/pkg/op"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewStorageWithClient(client, "test:")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, mr
}

func pendingGrant() *op.CibaGrant {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &op.CibaGrant{
		BackchannelAuthenticationRequestID: "req-1",
		Tenant:                             "tenant",
		AuthReqID:                          "auth-req-id",
		Grant: op.AuthorizationGrant{
			Tenant:   "tenant",
			ClientID: "client",
			Scopes:   oidc.SpaceDelimitedArray{"openid"},
		},
		Interval:  5 * time.Second,
		ExpiresAt: now.Add(time.Minute),
		Status:    op.CibaGrantStatusPending,
		CreatedAt: now,
	}
}

func TestStorage_AuthorizationRequest(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	request := &op.AuthorizationRequest{
		ID:        "id",
		Tenant:    "tenant",
		Profile:   oidc.ProfileOIDC,
		Scopes:    oidc.SpaceDelimitedArray{"openid", "profile"},
		ExpiresAt: s.now().Add(time.Minute),
	}

	require.NoError(t, s.RegisterAuthorizationRequest(ctx, request))
	assert.ErrorIs(t, s.RegisterAuthorizationRequest(ctx, request), op.ErrConflict)
	assert.Equal(t, time.Minute, mr.TTL("test:authreq:{tenant}:id"))

	got, err := s.AuthorizationRequest(ctx, "tenant", "id")
	require.NoError(t, err)
	assert.Equal(t, request.Scopes, got.Scopes)
	assert.Equal(t, request.Profile, got.Profile)

	mr.FastForward(time.Minute)
	_, err = s.AuthorizationRequest(ctx, "tenant", "id")
	assert.ErrorIs(t, err, op.ErrNotFound)
}

func TestStorage_TransitionCibaGrant(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	grant := pendingGrant()

	assert.ErrorIs(t, s.TransitionCibaGrant(ctx, grant.Deny(), op.CibaGrantStatusPending), op.ErrNotFound)

	require.NoError(t, s.RegisterCibaGrant(ctx, grant))
	ttl := mr.TTL("test:ciba:{tenant}:auth-req-id")

	require.NoError(t, s.TransitionCibaGrant(ctx, grant.Authorize("user", nil, map[string]any{"k": "v"}), op.CibaGrantStatusPending))
	assert.ErrorIs(t, s.TransitionCibaGrant(ctx, grant.Deny(), op.CibaGrantStatusPending), op.ErrConflict)
	assert.Equal(t, ttl, mr.TTL("test:ciba:{tenant}:auth-req-id"))

	got, err := s.CibaGrant(ctx, "tenant", "auth-req-id")
	require.NoError(t, err)
	assert.Equal(t, op.CibaGrantStatusAuthorized, got.Status)
	assert.Equal(t, "user", got.Grant.Subject)
	assert.Equal(t, "v", got.Grant.CustomProperties["k"])
}

func TestStorage_ConsumeCibaGrant(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	grant := pendingGrant()
	require.NoError(t, s.RegisterCibaGrant(ctx, grant))

	_, err := s.ConsumeCibaGrant(ctx, "tenant", "auth-req-id")
	assert.ErrorIs(t, err, op.ErrNotFound, "pending grants cannot be consumed")

	require.NoError(t, s.TransitionCibaGrant(ctx, grant.Authorize("user", nil, nil), op.CibaGrantStatusPending))
	_, err = s.AllowPoll(ctx, "tenant", "auth-req-id", grant.Interval)
	require.NoError(t, err)

	consumed, err := s.ConsumeCibaGrant(ctx, "tenant", "auth-req-id")
	require.NoError(t, err)
	assert.Equal(t, "user", consumed.Grant.Subject)
	assert.Equal(t, grant.Interval, consumed.Interval)
	assert.False(t, mr.Exists("test:poll:{tenant}:auth-req-id"))

	_, err = s.ConsumeCibaGrant(ctx, "tenant", "auth-req-id")
	assert.ErrorIs(t, err, op.ErrNotFound)
}

func TestStorage_DeleteCibaGrant(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterCibaGrant(ctx, pendingGrant()))

	require.NoError(t, s.DeleteCibaGrant(ctx, "tenant", "auth-req-id"))
	assert.ErrorIs(t, s.DeleteCibaGrant(ctx, "tenant", "auth-req-id"), op.ErrNotFound)
}

func TestStorage_UseJTI(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	exp := s.now().Add(time.Minute)

	require.NoError(t, s.UseJTI(ctx, "tenant", "client", "jti", exp))
	assert.ErrorIs(t, s.UseJTI(ctx, "tenant", "client", "jti", exp), op.ErrConflict)
	assert.NoError(t, s.UseJTI(ctx, "other", "client", "jti", exp))

	mr.FastForward(time.Minute)
	assert.NoError(t, s.UseJTI(ctx, "tenant", "client", "jti", exp))
}

func TestStorage_AllowPoll(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"first poll", 0, true},
		{"too fast", time.Second, false},
		{"after interval", 4 * time.Second, true},
		{"too fast again", 2 * time.Second, false},
	}
	for _, tt := range tests {
		mr.FastForward(tt.advance)
		got, err := s.AllowPoll(ctx, "tenant", "auth-req-id", 5*time.Second)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestNewStorage(t *testing.T) {
	_, err := NewStorage(context.Background(), Config{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	s, err := NewStorage(context.Background(), Config{Addrs: []string{mr.Addr()}, KeyPrefix: "idp:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.Equal(t, "idp:", s.keyPrefix)
}
