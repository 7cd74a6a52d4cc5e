package op

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/idpserver/idp/internal/otel"
	httphelper "github.com/idpserver/idp/pkg/http"
	"github.com/idpserver/idp/pkg/oidc"
)

// RecommendedAuthReqIDBytes is the recommended number of bytes for auth_req_id generation (128-bit entropy)
const RecommendedAuthReqIDBytes = 16

// NewAuthReqID generates a cryptographically secure auth_req_id with the specified number of bytes
func NewAuthReqID(nBytes int) (string, error) {
	bytes := make([]byte, nBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// BackchannelAuthenticationHandler validates backchannel authentication
// requests and creates the PENDING CibaGrant.
type BackchannelAuthenticationHandler struct {
	Config   ConfigurationRepository
	Requests BackchannelAuthenticationRequestRepository
	Grants   CibaGrantRepository
	Creators CibaRequestContextCreators
	Verifier *CibaRequestVerifier
	Decoder  httphelper.Decoder
	MTLS     *MTLSConfig
}

// Handle runs the backchannel authentication pipeline for tenant.
// values are the form values, auth is the presented client authentication.
func (h *BackchannelAuthenticationHandler) Handle(ctx context.Context, tenant string, auth *ClientAuthentication, values url.Values) (_ *oidc.BackchannelAuthenticationResponse, err error) {
	ctx, span := tracer.Start(ctx, "BackchannelAuthenticationHandler.Handle")
	defer span.End()
	otel.Tenant(span, tenant)
	defer func() {
		if err != nil {
			otel.Fail(span, err)
		}
	}()

	if err := checkDuplicateParameters(values); err != nil {
		return nil, err
	}
	params := new(oidc.BackchannelAuthenticationParameters)
	if err := h.Decoder.Decode(params, values); err != nil {
		return nil, oidc.ErrInvalidRequest().WithDescription("cannot parse backchannel authentication request").WithParent(err)
	}
	if values.Has(oidc.ParamRequestURI) {
		return nil, oidc.ErrInvalidRequest().WithDescription("request_uri is not supported at the backchannel authentication endpoint")
	}
	clientID := auth.ClientID
	if clientID == "" {
		clientID = params.ClientID
	}
	if clientID == "" {
		return nil, oidc.ErrInvalidClient().WithDescription("client authentication is required")
	}

	server, client, err := loadConfiguration(ctx, h.Config, tenant, clientID)
	if err != nil {
		return nil, err
	}
	if err := AuthenticateClient(auth, server, client, h.MTLS); err != nil {
		return nil, err
	}

	pattern := oidc.PatternNormal
	if params.Request != "" {
		pattern = oidc.PatternRequestObject
	}
	creator, err := h.Creators.Get(pattern)
	if err != nil {
		return nil, err
	}
	rc, err := creator.Create(ctx, tenant, auth, params, server, client)
	if err != nil {
		return nil, err
	}
	if err := h.Verifier.Verify(ctx, rc); err != nil {
		return nil, err
	}

	authReqID, err := NewAuthReqID(RecommendedAuthReqIDBytes)
	if err != nil {
		return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to generate auth_req_id")
	}
	request := rc.Request
	if err := h.Requests.RegisterBackchannelAuthenticationRequest(ctx, request); err != nil {
		return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to store backchannel authentication request")
	}
	if err := h.Grants.RegisterCibaGrant(ctx, NewCibaGrant(request, authReqID)); err != nil {
		return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to store ciba grant")
	}

	return &oidc.BackchannelAuthenticationResponse{
		AuthReqID: authReqID,
		ExpiresIn: int(request.ExpiresAt.Sub(request.CreatedAt) / time.Second),
		Interval:  int(request.Interval / time.Second),
	}, nil
}

// BackchannelAuthenticationResult is the outcome of the out-of-band user
// authentication.
type BackchannelAuthenticationResult struct {
	Denied           bool
	Subject          string
	Authentication   *Authentication
	CustomProperties map[string]any
}

var (
	ErrCibaGrantExpired     = errors.New("ciba grant is expired")
	ErrCibaGrantNotPending  = errors.New("ciba grant is not pending")
	ErrCibaGrantMissingUser = errors.New("authorized ciba grant requires a subject")
)

// CompleteBackchannelAuthentication moves a PENDING grant to AUTHORIZED or
// DENIED. It fails with ErrConflict when the grant left PENDING concurrently.
func CompleteBackchannelAuthentication(ctx context.Context, grants CibaGrantRepository, tenant, authReqID string, result BackchannelAuthenticationResult, now time.Time) error {
	ctx, span := tracer.Start(ctx, "CompleteBackchannelAuthentication")
	defer span.End()
	otel.Tenant(span, tenant)

	if !result.Denied && result.Subject == "" {
		return ErrCibaGrantMissingUser
	}
	grant, err := grants.CibaGrant(ctx, tenant, authReqID)
	if err != nil {
		return err
	}
	if grant.IsExpired(now) {
		return ErrCibaGrantExpired
	}
	if !grant.IsPending() {
		return fmt.Errorf("%w: %s", ErrCibaGrantNotPending, grant.Status)
	}
	next := grant.Deny()
	if !result.Denied {
		next = grant.Authorize(result.Subject, result.Authentication, result.CustomProperties)
	}
	if err := grants.TransitionCibaGrant(ctx, next, CibaGrantStatusPending); err != nil {
		otel.Fail(span, err)
		return err
	}
	return nil
}
