package op_test

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/internal/testutil"
	"github.com/idpserver/idp/pkg/oidc"
	"github.com/idpserver/idp/pkg/op"
	"github.com/idpserver/idp/pkg/op/mock"
	"github.com/idpserver/idp/pkg/storage/memory"
)

const (
	testTenant     = "tenant-a"
	testIssuer     = "https://idp.example.com/tenant-a"
	testClientID   = "client-1"
	testSecret     = "b3f1c0d2e4a59687b3f1c0d2e4a59687b3f1c0d2e4a59687b3f1c0d2e4a59687"
	testRedirect   = "https://client.example.com/cb"
	testRequestURI = "https://client.example.com/request.jwt"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// Keys are generated once, RSA key generation is slow.
var (
	testPS256Keys = testutil.NewKeySet(jose.PS256, "ps256")
	testRS256Keys = testutil.NewKeySet(jose.RS256, "rs256")
	testES256Keys = testutil.NewKeySet(jose.ES256, "es256")
	testHMACKeys  = testutil.NewHMACKeySet(jose.HS256, testSecret)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testNow}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testServer() *op.ServerConfiguration {
	return &op.ServerConfiguration{
		TenantID:        testTenant,
		TokenIssuer:     testIssuer,
		ScopesSupported: []string{"openid", "profile", "email", "read", "write"},
		ResponseTypesSupported: []oidc.ResponseType{
			oidc.ResponseTypeCode,
			oidc.ResponseTypeIDTokenOnly,
			oidc.ResponseTypeCodeIDToken,
		},
		GrantTypesSupported: []oidc.GrantType{
			oidc.GrantTypeCode,
			oidc.GrantTypeRefreshToken,
			oidc.GrantTypeClientCredentials,
			oidc.GrantTypePassword,
			oidc.GrantTypeCIBA,
		},
		FapiBaselineScopes:                     []string{"read"},
		FapiAdvanceScopes:                      []string{"write"},
		AuthorizationRequestExpiresIn:          30 * time.Minute,
		BackchannelTokenDeliveryModesSupported: []oidc.BackchannelTokenDeliveryMode{oidc.DeliveryModePoll, oidc.DeliveryModePing},
		BackchannelUserCodeParameterSupported:  true,
		BackchannelAuthRequestExpiresIn:        5 * time.Minute,
		BackchannelPollingInterval:             5 * time.Second,
	}
}

func testClient() *op.ClientConfiguration {
	return &op.ClientConfiguration{
		TenantID:     testTenant,
		ClientID:     testClientID,
		ClientSecret: testSecret,
		ClientName:   "Test Client",
		RedirectURIs: []string{testRedirect},
		ResponseTypes: []oidc.ResponseType{
			oidc.ResponseTypeCode,
			oidc.ResponseTypeIDTokenOnly,
			oidc.ResponseTypeCodeIDToken,
		},
		GrantTypes: []oidc.GrantType{
			oidc.GrantTypeCode,
			oidc.GrantTypeRefreshToken,
			oidc.GrantTypeClientCredentials,
			oidc.GrantTypePassword,
			oidc.GrantTypeCIBA,
		},
		Scopes:                  []string{"openid", "profile", "email", "read", "write"},
		JWKS:                    jwks(testPS256Keys, testRS256Keys, testES256Keys),
		RequestURIs:             []string{testRequestURI},
		TokenEndpointAuthMethod: oidc.ClientAuthMethodBasic,
	}
}

// jwks merges the public keys of sets into one JWKS document.
func jwks(sets ...*testutil.KeySet) string {
	var merged jose.JSONWebKeySet
	for _, set := range sets {
		parsed, err := oidc.ParseJSONWebKeySet(set.JWKS())
		if err != nil {
			panic(err)
		}
		merged.Keys = append(merged.Keys, parsed.Keys...)
	}
	data, err := json.Marshal(merged)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func oidcKeySet(document string) ([]jose.JSONWebKey, error) {
	set, err := oidc.ParseJSONWebKeySet(document)
	return set.Keys, err
}

// requestObject signs claims issued by the test client for the test issuer
// and applies modify on top.
func requestObject(keys *testutil.KeySet, now time.Time, modify map[string]any) string {
	claims := testutil.RequestObjectClaims(testClientID, testIssuer, now, 10*time.Minute)
	for k, v := range modify {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return keys.Sign(claims)
}

type testEnv struct {
	provider *op.Provider
	storage  *memory.Storage
	clock    *testClock
	issuer   *mock.MockTokenIssuer
	fetcher  *mock.MockRequestObjectFetcher
}

// newTestEnv wires a provider on memory storage. Configuration is served
// by a mock repository, the token issuer and request_uri fetcher are
// mocks without expectations.
func newTestEnv(t *testing.T, server *op.ServerConfiguration, clients []*op.ClientConfiguration, opts ...op.Option) *testEnv {
	t.Helper()
	clock := newTestClock()
	storage := memory.NewStorage(memory.WithClock(clock.Now), memory.WithCleanupInterval(0))
	t.Cleanup(func() { _ = storage.Close() })

	env := &testEnv{
		storage: storage,
		clock:   clock,
		issuer:  mock.NewMockTokenIssuer(gomock.NewController(t)),
		fetcher: mock.NewRequestObjectFetcher(t),
	}
	opts = append([]op.Option{
		op.WithClock(clock.Now),
		op.WithRequestObjectFetcher(env.fetcher),
	}, opts...)
	provider, err := op.NewProvider(mock.NewConfigurationRepository(t, server, clients...), storage, env.issuer, opts...)
	require.NoError(t, err)
	env.provider = provider
	return env
}

func (e *testEnv) authorize(values url.Values) (*op.AuthorizationRequest, error) {
	return e.provider.AuthorizationHandler().Handle(context.Background(), testTenant, values)
}

func (e *testEnv) backchannel(values url.Values) (*oidc.BackchannelAuthenticationResponse, error) {
	auth := &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true}
	return e.provider.BackchannelHandler().Handle(context.Background(), testTenant, auth, values)
}

func (e *testEnv) token(values url.Values) (*oidc.AccessTokenResponse, error) {
	auth := &op.ClientAuthentication{ClientID: testClientID, ClientSecret: testSecret, Basic: true}
	return e.provider.TokenHandler().Handle(context.Background(), testTenant, auth, values)
}

// assertOAuthError asserts that err is an *oidc.Error of the same type as
// want whose description contains description.
func assertOAuthError(t *testing.T, err error, want *oidc.Error, description string) *oidc.Error {
	t.Helper()
	var oauth *oidc.Error
	require.ErrorAs(t, err, &oauth)
	assert.Equal(t, want.ErrorType, oauth.ErrorType, oauth.Description)
	if description != "" {
		assert.Contains(t, oauth.Description, description)
	}
	return oauth
}

func TestNewProvider(t *testing.T) {
	storage := memory.NewStorage(memory.WithCleanupInterval(0))
	t.Cleanup(func() { _ = storage.Close() })
	issuer := mock.NewMockTokenIssuer(gomock.NewController(t))

	_, err := op.NewProvider(nil, storage, issuer)
	assert.Error(t, err)
	_, err = op.NewProvider(storage, storage, issuer, op.WithRequestObjectFetcher(nil))
	assert.Error(t, err)
	_, err = op.NewProvider(storage, storage, issuer, op.WithMTLSConfig(&op.MTLSConfig{EnableProxyHeaders: true}))
	assert.Error(t, err)

	provider, err := op.NewProvider(storage, storage, issuer)
	require.NoError(t, err)
	assert.NotNil(t, provider.AuthorizationHandler())
	assert.NotNil(t, provider.BackchannelHandler())
	assert.NotNil(t, provider.TokenHandler())
	assert.Same(t, storage, provider.Storage())
}
