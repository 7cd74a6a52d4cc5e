package op

import (
	"context"
	"errors"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
)

// RequestObjectVerifier checks the trust claims of a verified request object.
// It is shared by the authorization and the backchannel authentication endpoint.
type RequestObjectVerifier struct {
	// JTIs rejects replayed request objects when set.
	JTIs JTIStore
	Now  func() time.Time
}

func NewRequestObjectVerifier(jtis JTIStore) *RequestObjectVerifier {
	return &RequestObjectVerifier{
		JTIs: jtis,
		Now:  time.Now,
	}
}

type requestObjectCheck func(jose *JoseContext, server *ServerConfiguration, client *ClientConfiguration, now time.Time) *oidc.Error

// requestObjectChecks run in this order, the first failure is reported.
var requestObjectChecks = []requestObjectCheck{
	checkAsymmetric,
	checkIssuer,
	checkAudience,
	checkJWTID,
	checkExpiration,
	checkNotNested,
	checkClientID,
	checkScopeRequired,
}

// Verify runs the request object checks and, with a JTIStore, the replay check.
// Every failure is an invalid_request_object error.
func (v *RequestObjectVerifier) Verify(ctx context.Context, tenant string, jose *JoseContext, server *ServerConfiguration, client *ClientConfiguration) error {
	ctx, span := tracer.Start(ctx, "RequestObjectVerifier.Verify")
	defer span.End()

	if !jose.Exists() {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, request object is missing")
	}
	now := v.now()
	for _, check := range requestObjectChecks {
		if err := check(jose, server, client, now); err != nil {
			return err
		}
	}
	if v.JTIs == nil {
		return nil
	}
	err := v.JTIs.UseJTI(ctx, tenant, client.ClientID, jose.Claims.JWTID, jose.Claims.Expiration.AsTime())
	if errors.Is(err, ErrConflict) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, jti claim has already been used")
	}
	if err != nil {
		return oidc.ErrServerError().WithParent(err).WithDescription("unable to record request object jti")
	}
	return nil
}

func (v *RequestObjectVerifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func checkAsymmetric(jose *JoseContext, _ *ServerConfiguration, _ *ClientConfiguration, _ time.Time) *oidc.Error {
	if jose.IsSymmetric() {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, request object must be signed with asymmetric key")
	}
	return nil
}

func checkIssuer(jose *JoseContext, _ *ServerConfiguration, client *ClientConfiguration, _ time.Time) *oidc.Error {
	if !jose.Claims.Has("iss") {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains iss claim in jwt payload")
	}
	if !client.MatchesIssuer(jose.Claims.Issuer) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, iss claim must be client_id")
	}
	return nil
}

func checkAudience(jose *JoseContext, server *ServerConfiguration, _ *ClientConfiguration, _ time.Time) *oidc.Error {
	if !jose.Claims.Has("aud") || len(jose.Claims.Audience) == 0 {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains aud claim in jwt payload")
	}
	if !jose.Claims.Audience.Contains(server.TokenIssuer) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, aud claim must be issuer")
	}
	return nil
}

func checkJWTID(jose *JoseContext, _ *ServerConfiguration, _ *ClientConfiguration, _ time.Time) *oidc.Error {
	if jose.Claims.JWTID == "" {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains jti claim in jwt payload")
	}
	return nil
}

func checkExpiration(jose *JoseContext, _ *ServerConfiguration, _ *ClientConfiguration, now time.Time) *oidc.Error {
	if !jose.Claims.Has("exp") || jose.Claims.Expiration == 0 {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains exp claim in jwt payload")
	}
	if !now.Before(jose.Claims.Expiration.AsTime()) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, jwt is expired")
	}
	return nil
}

func checkNotNested(jose *JoseContext, _ *ServerConfiguration, _ *ClientConfiguration, _ time.Time) *oidc.Error {
	if jose.Claims.Has(oidc.ParamRequest) || jose.Claims.Has(oidc.ParamRequestURI) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, request object must not contain request or request_uri claim")
	}
	return nil
}

// checkClientID rejects a client_id claim naming another client than the
// one the request was made for.
func checkClientID(jose *JoseContext, _ *ServerConfiguration, client *ClientConfiguration, _ time.Time) *oidc.Error {
	if jose.Claims.Has(oidc.ParamClientID) && !client.MatchesIssuer(jose.Claims.ClientID) {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, client_id claim must match the requesting client")
	}
	return nil
}

func checkScopeRequired(jose *JoseContext, _ *ServerConfiguration, client *ClientConfiguration, _ time.Time) *oidc.Error {
	if client.RequireSignedRequestObject && !jose.Claims.HasScope() {
		return oidc.ErrInvalidRequestObject().WithDescription("request object is invalid, must contains scope claim when require_signed_request_object is true")
	}
	return nil
}
