// Package redis implements op.Storage on Redis, so that several server
// instances can share requests, CIBA grants and replay state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/idpserver/idp/pkg/op"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config is the connection configuration. Addrs with more than one entry
// and MasterName select cluster or sentinel clients, see redis.UniversalOptions.
type Config struct {
	Addrs      []string `yaml:"addrs"`
	MasterName string   `yaml:"master_name"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	KeyPrefix  string   `yaml:"key_prefix"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Storage struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewStorage connects to Redis and pings it.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewStorageWithClient(client, cfg.KeyPrefix), nil
}

// NewStorageWithClient uses a pre-configured client, for example one
// connected to miniredis.
func NewStorageWithClient(client redis.UniversalClient, keyPrefix string) *Storage {
	return &Storage{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) key(kind, tenant, id string) string {
	return fmt.Sprintf("%s%s:{%s}:%s", s.keyPrefix, kind, tenant, id)
}

func (s *Storage) jtiKey(tenant, clientID, jti string) string {
	return fmt.Sprintf("%sjti:{%s}:%s:%s", s.keyPrefix, tenant, clientID, jti)
}

func (s *Storage) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *Storage) RegisterAuthorizationRequest(ctx context.Context, request *op.AuthorizationRequest) error {
	return s.create(ctx, s.key("authreq", request.Tenant, request.ID), request, s.ttl(request.ExpiresAt))
}

func (s *Storage) AuthorizationRequest(ctx context.Context, tenant, id string) (*op.AuthorizationRequest, error) {
	request := new(op.AuthorizationRequest)
	if err := s.get(ctx, s.key("authreq", tenant, id), request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *Storage) RegisterBackchannelAuthenticationRequest(ctx context.Context, request *op.BackchannelAuthenticationRequest) error {
	ttl := s.ttl(request.ExpiresAt.Add(op.ExpiredCibaGrantRetention))
	return s.create(ctx, s.key("backchannel", request.Tenant, request.ID), request, ttl)
}

func (s *Storage) BackchannelAuthenticationRequest(ctx context.Context, tenant, id string) (*op.BackchannelAuthenticationRequest, error) {
	request := new(op.BackchannelAuthenticationRequest)
	if err := s.get(ctx, s.key("backchannel", tenant, id), request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *Storage) RegisterCibaGrant(ctx context.Context, grant *op.CibaGrant) error {
	return s.create(ctx, s.key("ciba", grant.Tenant, grant.AuthReqID), grant, s.ttl(grant.ExpiresAt.Add(op.ExpiredCibaGrantRetention)))
}

func (s *Storage) CibaGrant(ctx context.Context, tenant, authReqID string) (*op.CibaGrant, error) {
	grant := new(op.CibaGrant)
	if err := s.get(ctx, s.key("ciba", tenant, authReqID), grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// transitionScript replaces the grant if its status equals ARGV[1] and
// keeps the remaining TTL. It returns 0 for a missing grant and -1 for a
// status mismatch.
var transitionScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end
local grant = cjson.decode(data)
if grant.status ~= ARGV[1] then
	return -1
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (s *Storage) TransitionCibaGrant(ctx context.Context, grant *op.CibaGrant, from op.CibaGrantStatus) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal ciba grant: %w", err)
	}
	result, err := transitionScript.Run(ctx, s.client, []string{s.key("ciba", grant.Tenant, grant.AuthReqID)}, string(from), data).Int()
	if err != nil {
		return fmt.Errorf("failed to transition ciba grant: %w", err)
	}
	switch result {
	case 0:
		return op.ErrNotFound
	case -1:
		return op.ErrConflict
	}
	return nil
}

// consumeScript deletes and returns an AUTHORIZED grant together with its
// poll marker. Any other grant is left untouched.
var consumeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return false
end
local grant = cjson.decode(data)
if grant.status ~= ARGV[1] then
	return false
end
redis.call('DEL', KEYS[1], KEYS[2])
return data
`)

func (s *Storage) ConsumeCibaGrant(ctx context.Context, tenant, authReqID string) (*op.CibaGrant, error) {
	keys := []string{s.key("ciba", tenant, authReqID), s.key("poll", tenant, authReqID)}
	data, err := consumeScript.Run(ctx, s.client, keys, string(op.CibaGrantStatusAuthorized)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, op.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume ciba grant: %w", err)
	}
	grant := new(op.CibaGrant)
	if err := json.Unmarshal([]byte(data), grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ciba grant: %w", err)
	}
	return grant, nil
}

func (s *Storage) DeleteCibaGrant(ctx context.Context, tenant, authReqID string) error {
	n, err := s.client.Del(ctx, s.key("ciba", tenant, authReqID), s.key("poll", tenant, authReqID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete ciba grant: %w", err)
	}
	if n == 0 {
		return op.ErrNotFound
	}
	return nil
}

func (s *Storage) UseJTI(ctx context.Context, tenant, clientID, jti string, expiresAt time.Time) error {
	ok, err := s.client.SetNX(ctx, s.jtiKey(tenant, clientID, jti), 1, s.ttl(expiresAt)).Result()
	if err != nil {
		return fmt.Errorf("failed to store jti: %w", err)
	}
	if !ok {
		return op.ErrConflict
	}
	return nil
}

// AllowPoll sets a marker that lives for interval. A poll is allowed when
// no marker exists.
func (s *Storage) AllowPoll(ctx context.Context, tenant, authReqID string, interval time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key("poll", tenant, authReqID), 1, interval).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check poll interval: %w", err)
	}
	return ok, nil
}

func (s *Storage) create(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	if !ok {
		return op.ErrConflict
	}
	return nil
}

func (s *Storage) get(ctx context.Context, key string, value any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return op.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

var _ op.Storage = (*Storage)(nil)
