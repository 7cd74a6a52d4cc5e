package op

import (
	"slices"

	"github.com/idpserver/idp/pkg/oidc"
)

// FilterScopes selects the scope source and reduces it to the scopes
// registered for the client. Unregistered scopes are dropped, not rejected.
//
// The scope claim of the request object is used when the pattern carries one
// or when the client requires signed request objects. The plain parameter
// is used otherwise.
func FilterScopes(pattern oidc.RequestPattern, requested oidc.SpaceDelimitedArray, jose *JoseContext, client *ClientConfiguration) oidc.SpaceDelimitedArray {
	source := requested
	if pattern.IsRequestObject() || client.RequireSignedRequestObject {
		source = nil
		if jose.Exists() {
			source = jose.Claims.Scopes()
		}
	}
	return intersectScopes(source, client.Scopes)
}

func intersectScopes(requested, registered []string) oidc.SpaceDelimitedArray {
	filtered := make(oidc.SpaceDelimitedArray, 0, len(requested))
	for _, scope := range requested {
		if !slices.Contains(registered, scope) || slices.Contains(filtered, scope) {
			continue
		}
		filtered = append(filtered, scope)
	}
	return filtered
}

// AnalyzeProfile returns the profile of an authorization request.
// FAPI Advance takes precedence over FAPI Baseline, OIDC is the default.
func AnalyzeProfile(scopes oidc.SpaceDelimitedArray, server *ServerConfiguration) oidc.AuthorizationProfile {
	switch {
	case server.hasFapiAdvanceScope(scopes):
		return oidc.ProfileFapiAdvance
	case server.hasFapiBaselineScope(scopes):
		return oidc.ProfileFapiBaseline
	default:
		return oidc.ProfileOIDC
	}
}

// AnalyzeCibaProfile returns the profile of a backchannel authentication request.
// Any FAPI scope makes it FAPI_CIBA, CIBA is the default.
func AnalyzeCibaProfile(scopes oidc.SpaceDelimitedArray, server *ServerConfiguration) oidc.CibaProfile {
	if server.hasFapiAdvanceScope(scopes) || server.hasFapiBaselineScope(scopes) {
		return oidc.CibaProfileFapiCiba
	}
	return oidc.CibaProfileCIBA
}
