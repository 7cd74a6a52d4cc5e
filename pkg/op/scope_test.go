package op_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idpserver/idp/pkg/oidc"
	"github.com/idpserver/idp/pkg/op"
)

func joseWithClaims(t *testing.T, payload string) *op.JoseContext {
	t.Helper()
	claims, err := oidc.ParseRequestObjectClaims([]byte(payload))
	require.NoError(t, err)
	return &op.JoseContext{Algorithm: "PS256", Claims: claims}
}

func TestFilterScopes(t *testing.T) {
	client := &op.ClientConfiguration{Scopes: []string{"openid", "profile", "email"}}
	signed := &op.ClientConfiguration{Scopes: client.Scopes, RequireSignedRequestObject: true}

	tests := []struct {
		name      string
		pattern   oidc.RequestPattern
		requested oidc.SpaceDelimitedArray
		jose      string
		client    *op.ClientConfiguration
		want      oidc.SpaceDelimitedArray
	}{
		{
			name:      "normal pattern",
			pattern:   oidc.PatternNormal,
			requested: oidc.SpaceDelimitedArray{"openid", "profile"},
			client:    client,
			want:      oidc.SpaceDelimitedArray{"openid", "profile"},
		},
		{
			name:      "unregistered scopes are dropped",
			pattern:   oidc.PatternNormal,
			requested: oidc.SpaceDelimitedArray{"openid", "admin", "email"},
			client:    client,
			want:      oidc.SpaceDelimitedArray{"openid", "email"},
		},
		{
			name:      "duplicates collapse",
			pattern:   oidc.PatternNormal,
			requested: oidc.SpaceDelimitedArray{"openid", "openid"},
			client:    client,
			want:      oidc.SpaceDelimitedArray{"openid"},
		},
		{
			name:      "request object scope wins",
			pattern:   oidc.PatternRequestObject,
			requested: oidc.SpaceDelimitedArray{"openid", "profile"},
			jose:      `{"scope":"openid email"}`,
			client:    client,
			want:      oidc.SpaceDelimitedArray{"openid", "email"},
		},
		{
			name:      "request object without scope",
			pattern:   oidc.PatternRequestURI,
			requested: oidc.SpaceDelimitedArray{"openid", "profile"},
			jose:      `{"iss":"client-1"}`,
			client:    client,
			want:      oidc.SpaceDelimitedArray{},
		},
		{
			name:      "signed request object required ignores query",
			pattern:   oidc.PatternNormal,
			requested: oidc.SpaceDelimitedArray{"openid", "profile"},
			client:    signed,
			want:      oidc.SpaceDelimitedArray{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var jose *op.JoseContext
			if tt.jose != "" {
				jose = joseWithClaims(t, tt.jose)
			}
			got := op.FilterScopes(tt.pattern, tt.requested, jose, tt.client)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterScopes_Intersection(t *testing.T) {
	universe := []string{"openid", "profile", "email", "address", "phone", "read", "write", "offline_access"}
	sample := func(r *rand.Rand) []string {
		var out []string
		for _, s := range universe {
			if r.IntN(2) == 0 {
				out = append(out, s)
			}
		}
		return out
	}
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		requested := oidc.SpaceDelimitedArray(sample(r))
		registered := sample(r)
		got := op.FilterScopes(oidc.PatternNormal, requested, nil, &op.ClientConfiguration{Scopes: registered})
		for _, scope := range got {
			assert.Contains(t, registered, scope)
			assert.Contains(t, requested, scope)
		}
	}
}

func TestAnalyzeProfile(t *testing.T) {
	server := testServer()
	tests := []struct {
		name   string
		scopes oidc.SpaceDelimitedArray
		want   oidc.AuthorizationProfile
	}{
		{"oidc", oidc.SpaceDelimitedArray{"openid", "profile"}, oidc.ProfileOIDC},
		{"empty", nil, oidc.ProfileOIDC},
		{"baseline", oidc.SpaceDelimitedArray{"openid", "read"}, oidc.ProfileFapiBaseline},
		{"advance", oidc.SpaceDelimitedArray{"write"}, oidc.ProfileFapiAdvance},
		{"advance takes precedence", oidc.SpaceDelimitedArray{"read", "write"}, oidc.ProfileFapiAdvance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, op.AnalyzeProfile(tt.scopes, server))
		})
	}
}

func TestAnalyzeCibaProfile(t *testing.T) {
	server := testServer()
	assert.Equal(t, oidc.CibaProfileCIBA, op.AnalyzeCibaProfile(oidc.SpaceDelimitedArray{"openid"}, server))
	assert.Equal(t, oidc.CibaProfileFapiCiba, op.AnalyzeCibaProfile(oidc.SpaceDelimitedArray{"openid", "read"}, server))
	assert.Equal(t, oidc.CibaProfileFapiCiba, op.AnalyzeCibaProfile(oidc.SpaceDelimitedArray{"openid", "write"}, server))
}
