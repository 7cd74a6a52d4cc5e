// Package config loads the process configuration of idpserver.
package config

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/idpserver/idp/pkg/op"
	"github.com/idpserver/idp/pkg/storage/redis"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"

	DefaultListenAddr = ":8080"
)

const (
	EnvListenAddr  = "IDP_LISTEN_ADDR"
	EnvStorage     = "IDP_STORAGE"
	EnvRedisAddr   = "IDP_REDIS_ADDR"
	EnvRedisPrefix = "IDP_REDIS_PREFIX"
	EnvLogLevel    = "IDP_LOG_LEVEL"
)

type Config struct {
	ListenAddr string       `yaml:"listen_addr"`
	LogLevel   string       `yaml:"log_level"`
	Storage    string       `yaml:"storage"`
	Redis      redis.Config `yaml:"redis"`

	RequestURI RequestURI `yaml:"request_uri"`
	MTLS       *MTLS      `yaml:"mtls"`

	// DisableReplayProtection turns off the request object jti store.
	DisableReplayProtection bool `yaml:"disable_replay_protection"`
	// DisablePollLimit turns off slow_down responses for CIBA polls.
	DisablePollLimit bool `yaml:"disable_poll_limit"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Tenants seed the memory configuration repository.
	Tenants []Tenant `yaml:"tenants"`
}

type RequestURI struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts uint          `yaml:"max_attempts"`
	AllowHTTP   bool          `yaml:"allow_http"`
}

type MTLS struct {
	// CAFile is a PEM bundle that verifies tls_client_auth certificates.
	CAFile                  string   `yaml:"ca_file"`
	EnableProxyHeaders      bool     `yaml:"enable_proxy_headers"`
	CertificateHeader       string   `yaml:"certificate_header"`
	CertificateHeaderFormat string   `yaml:"certificate_header_format"`
	TrustedProxyCIDRs       []string `yaml:"trusted_proxy_cidrs"`
}

type Tenant struct {
	Server  op.ServerConfiguration   `yaml:"server"`
	Clients []op.ClientConfiguration `yaml:"clients"`
}

func defaults() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		LogLevel:        "info",
		Storage:         StorageMemory,
		ShutdownTimeout: 10 * time.Second,
		RequestURI: RequestURI{
			Timeout:     op.DefaultRequestURITimeout,
			MaxAttempts: op.DefaultRequestURIMaxAttempts,
		},
	}
}

// Load reads the YAML file at path, if any, and applies the IDP_*
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListenAddr); ok {
		c.ListenAddr = v
	}
	if v, ok := lookup(EnvStorage); ok {
		c.Storage = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		c.Redis.Addrs = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvRedisPrefix); ok {
		c.Redis.KeyPrefix = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis.addrs is required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Tenants))
	for i, tenant := range c.Tenants {
		id := tenant.Server.TenantID
		if id == "" {
			errs = append(errs, fmt.Errorf("tenants[%d]: server.tenant_id is required", i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("tenants[%d]: duplicate tenant %q", i, id))
		}
		seen[id] = true
		if interval := tenant.Server.BackchannelPollingInterval; interval > 0 && interval < time.Second {
			errs = append(errs, fmt.Errorf("tenants[%d]: server.backchannel_polling_interval must be at least 1s", i))
		}
		for j, client := range tenant.Clients {
			if client.ClientID == "" {
				errs = append(errs, fmt.Errorf("tenants[%d].clients[%d]: client_id is required", i, j))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Seed returns the tenant configurations with the tenant id copied into
// every client.
func (c *Config) Seed() ([]*op.ServerConfiguration, []*op.ClientConfiguration) {
	servers := make([]*op.ServerConfiguration, 0, len(c.Tenants))
	var clients []*op.ClientConfiguration
	for _, tenant := range c.Tenants {
		server := tenant.Server
		servers = append(servers, &server)
		for _, client := range tenant.Clients {
			client.TenantID = server.TenantID
			clients = append(clients, &client)
		}
	}
	return servers, clients
}

// MTLSConfig builds the client certificate configuration, nil if mtls is
// not configured.
func (c *Config) MTLSConfig() (*op.MTLSConfig, error) {
	if c.MTLS == nil {
		return nil, nil
	}
	config := &op.MTLSConfig{
		EnableProxyHeaders:      c.MTLS.EnableProxyHeaders,
		CertificateHeader:       c.MTLS.CertificateHeader,
		CertificateHeaderFormat: c.MTLS.CertificateHeaderFormat,
		TrustedProxyCIDRs:       c.MTLS.TrustedProxyCIDRs,
	}
	if c.MTLS.CAFile != "" {
		data, err := os.ReadFile(c.MTLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read mtls ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("mtls ca_file %s contains no certificates", c.MTLS.CAFile)
		}
		config.TrustStore = pool
	}
	return config, nil
}
