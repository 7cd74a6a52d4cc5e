package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/pkg/oidc"
)

const testConfig = `
listen_addr: ":9000"
log_level: debug
request_uri:
  timeout: 2s
  max_attempts: 2
tenants:
  - server:
      tenant_id: tenant-a
      issuer: https://idp.example.com/tenant-a
      scopes_supported: [openid, profile, accounts]
      fapi_baseline_scopes: [read]
      grant_types_supported: [authorization_code, "urn:openid:params:grant-type:ciba"]
      authorization_request_expires_in: 30m
      backchannel_polling_interval: 5s
    clients:
      - client_id: client-1
        client_secret: secret
        redirect_uris: [https://client.example.com/cb]
        token_endpoint_auth_method: client_secret_basic
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 2*time.Second, cfg.RequestURI.Timeout)
	assert.Equal(t, uint(2), cfg.RequestURI.MaxAttempts)
	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	servers, clients := cfg.Seed()
	require.Len(t, servers, 1)
	assert.Equal(t, 30*time.Minute, servers[0].AuthorizationRequestExpiresIn)
	assert.Equal(t, []oidc.GrantType{oidc.GrantTypeCode, oidc.GrantTypeCIBA}, servers[0].GrantTypesSupported)
	require.Len(t, clients, 1)
	assert.Equal(t, "tenant-a", clients[0].TenantID)
	assert.Equal(t, oidc.ClientAuthMethodBasic, clients[0].TokenEndpointAuthMethod)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv(EnvStorage, StorageRedis)
	t.Setenv(EnvRedisAddr, "localhost:6379,localhost:6380")
	t.Setenv(EnvRedisPrefix, "idp:")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, []string{"localhost:6379", "localhost:6380"}, cfg.Redis.Addrs)
	assert.Equal(t, "idp:", cfg.Redis.KeyPrefix)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:    "unknown storage",
			modify:  func(c *Config) { c.Storage = "sql" },
			wantErr: `unknown storage "sql"`,
		},
		{
			name:    "redis without address",
			modify:  func(c *Config) { c.Storage = StorageRedis },
			wantErr: "redis.addrs is required",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "invalid log_level",
		},
		{
			name: "duplicate tenant",
			modify: func(c *Config) {
				c.Tenants = []Tenant{{}, {}}
				c.Tenants[0].Server.TenantID = "t"
				c.Tenants[1].Server.TenantID = "t"
			},
			wantErr: `duplicate tenant "t"`,
		},
		{
			name: "sub-second polling interval",
			modify: func(c *Config) {
				c.Tenants = []Tenant{{}}
				c.Tenants[0].Server.TenantID = "t"
				c.Tenants[0].Server.BackchannelPollingInterval = 500 * time.Millisecond
			},
			wantErr: "backchannel_polling_interval must be at least 1s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_MTLSConfig(t *testing.T) {
	cfg := defaults()
	mtls, err := cfg.MTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, mtls)

	cfg.MTLS = &MTLS{CAFile: writeConfig(t, "not a certificate")}
	_, err = cfg.MTLSConfig()
	assert.ErrorContains(t, err, "contains no certificates")
}
