package op

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/zitadel/schema"

	"github.com/idpserver/idp/internal/otel"
)

var tracer = otel.Tracer("github.com/idpserver/idp/pkg/op")

const (
	healthEndpoint  = "/healthz"
	metricsEndpoint = "/metrics"

	authorizationEndpoint = "/{tenant}/v1/authorizations"
	backchannelEndpoint   = "/{tenant}/v1/backchannel/authentications"
	tokenEndpoint         = "/{tenant}/v1/tokens"
)

var defaultCORSOptions = cors.Options{
	AllowCredentials: true,
	AllowedHeaders: []string{
		"Origin",
		"Accept",
		"Accept-Language",
		"Authorization",
		"Content-Type",
		"X-Requested-With",
	},
	AllowedMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
	},
	ExposedHeaders: []string{
		"Location",
		"Content-Length",
	},
	AllowOriginFunc: func(_ string) bool {
		return true
	},
}

// Provider wires the request pipeline: configuration, storage, the token
// issuer and the three endpoint handlers.
type Provider struct {
	config  ConfigurationRepository
	storage Storage
	issuer  TokenIssuer
	fetcher RequestObjectFetcher
	mtls    *MTLSConfig
	decoder *schema.Decoder
	logger  *slog.Logger
	now     func() time.Time

	replayProtection bool
	pollLimit        bool
	corsOptions      cors.Options
	middleware       []func(http.Handler) http.Handler
	metrics          http.Handler

	authorization *AuthorizationRequestHandler
	backchannel   *BackchannelAuthenticationHandler
	token         *TokenRequestHandler
}

func NewProvider(config ConfigurationRepository, storage Storage, issuer TokenIssuer, opOpts ...Option) (*Provider, error) {
	if config == nil || storage == nil || issuer == nil {
		return nil, errors.New("configuration, storage and token issuer are required")
	}
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	o := &Provider{
		config:           config,
		storage:          storage,
		issuer:           issuer,
		fetcher:          NewHTTPRequestObjectFetcher(DefaultRequestURITimeout, DefaultRequestURIMaxAttempts, false),
		decoder:          decoder,
		logger:           slog.Default(),
		now:              time.Now,
		replayProtection: true,
		pollLimit:        true,
		corsOptions:      defaultCORSOptions,
	}
	for _, optFunc := range opOpts {
		if err := optFunc(o); err != nil {
			return nil, err
		}
	}
	if err := o.mtls.Validate(); err != nil {
		return nil, err
	}
	o.logger = newLogger(o.logger)

	var jtis JTIStore
	if o.replayProtection {
		jtis = storage
	}
	requestObject := &RequestObjectVerifier{JTIs: jtis, Now: o.now}

	o.authorization = &AuthorizationRequestHandler{
		Config:   config,
		Requests: storage,
		Creators: NewRequestContextCreators(&RequestObjectResolver{Fetcher: o.fetcher}),
		Verifier: NewAuthorizationRequestVerifier(requestObject),
		Decoder:  decoder,
		Now:      o.now,
	}
	o.backchannel = &BackchannelAuthenticationHandler{
		Config:   config,
		Requests: storage,
		Grants:   storage,
		Creators: NewCibaRequestContextCreators(o.now),
		Verifier: NewCibaRequestVerifier(requestObject),
		Decoder:  decoder,
		MTLS:     o.mtls,
	}
	o.token = &TokenRequestHandler{
		Config:     config,
		Grants:     storage,
		Issuer:     issuer,
		Validators: DefaultGrantValidators(),
		MTLS:       o.mtls,
		Now:        o.now,
	}
	if o.pollLimit {
		o.token.Polls = storage
	}
	return o, nil
}

func (o *Provider) Storage() Storage {
	return o.storage
}

func (o *Provider) Logger() *slog.Logger {
	return o.logger
}

func (o *Provider) AuthorizationHandler() *AuthorizationRequestHandler {
	return o.authorization
}

func (o *Provider) BackchannelHandler() *BackchannelAuthenticationHandler {
	return o.backchannel
}

func (o *Provider) TokenHandler() *TokenRequestHandler {
	return o.token
}

// CompleteBackchannelAuthentication records the outcome of the out-of-band
// authentication for authReqID.
func (o *Provider) CompleteBackchannelAuthentication(ctx context.Context, tenant, authReqID string, result BackchannelAuthenticationResult) error {
	return CompleteBackchannelAuthentication(ctx, o.storage, tenant, authReqID, result, o.now())
}

type Option func(o *Provider) error

func WithLogger(logger *slog.Logger) Option {
	return func(o *Provider) error {
		o.logger = logger
		return nil
	}
}

// WithRequestObjectFetcher replaces the HTTPS request_uri fetcher.
func WithRequestObjectFetcher(fetcher RequestObjectFetcher) Option {
	return func(o *Provider) error {
		if fetcher == nil {
			return errors.New("request object fetcher must not be nil")
		}
		o.fetcher = fetcher
		return nil
	}
}

func WithMTLSConfig(config *MTLSConfig) Option {
	return func(o *Provider) error {
		o.mtls = config
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Provider) error {
		o.now = now
		return nil
	}
}

// WithoutReplayProtection disables the request object jti store.
func WithoutReplayProtection() Option {
	return func(o *Provider) error {
		o.replayProtection = false
		return nil
	}
}

// WithoutPollLimit disables slow_down responses for CIBA polls.
func WithoutPollLimit() Option {
	return func(o *Provider) error {
		o.pollLimit = false
		return nil
	}
}

func WithCORSOptions(opts cors.Options) Option {
	return func(o *Provider) error {
		o.corsOptions = opts
		return nil
	}
}

func WithHTTPMiddleware(m ...func(http.Handler) http.Handler) Option {
	return func(o *Provider) error {
		o.middleware = append(o.middleware, m...)
		return nil
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Provider) error {
		o.metrics = h
		return nil
	}
}
