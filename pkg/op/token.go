package op

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/idpserver/idp/internal/otel"
	"github.com/idpserver/idp/pkg/oidc"
)

// TokenRequestHandler validates token requests, resolves CIBA grants and
// hands off to the TokenIssuer.
type TokenRequestHandler struct {
	Config     ConfigurationRepository
	Grants     CibaGrantRepository
	Polls      PollLimiter
	Issuer     TokenIssuer
	Validators GrantValidators
	MTLS       *MTLSConfig
	Now        func() time.Time
}

func (h *TokenRequestHandler) Handle(ctx context.Context, tenant string, auth *ClientAuthentication, values url.Values) (_ *oidc.AccessTokenResponse, err error) {
	ctx, span := tracer.Start(ctx, "TokenRequestHandler.Handle")
	defer span.End()
	otel.Tenant(span, tenant)
	defer func() {
		if err != nil {
			otel.Fail(span, err)
		}
	}()

	if err := ValidateTokenRequest(values); err != nil {
		return nil, err
	}
	clientID := auth.ClientID
	if clientID == "" {
		clientID = values.Get(oidc.ParamClientID)
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

	tc := &TokenRequestContext{
		Tenant:         tenant,
		GrantType:      oidc.GrantType(values.Get(oidc.ParamGrantType)),
		Parameters:     values,
		Authentication: auth,
		Server:         server,
		Client:         client,
	}
	if err := h.validators().Validate(tc); err != nil {
		return nil, err
	}

	var grant *AuthorizationGrant
	if tc.GrantType == oidc.GrantTypeCIBA {
		if grant, err = h.pollCibaGrant(ctx, tc); err != nil {
			return nil, err
		}
	}
	response, err := h.Issuer.IssueToken(ctx, tc, grant)
	if err != nil {
		return nil, oidc.DefaultToServerError(err, "unable to issue token")
	}
	return response, nil
}

func (h *TokenRequestHandler) validators() GrantValidators {
	if h.Validators == nil {
		return DefaultGrantValidators()
	}
	return h.Validators
}

func (h *TokenRequestHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// pollCibaGrant decides the outcome of a CIBA poll. An AUTHORIZED grant
// is consumed, so that at most one token is issued for it.
func (h *TokenRequestHandler) pollCibaGrant(ctx context.Context, tc *TokenRequestContext) (*AuthorizationGrant, error) {
	ctx, span := tracer.Start(ctx, "TokenRequestHandler.pollCibaGrant")
	defer span.End()

	authReqID := tc.Value(oidc.ParamAuthReqID)
	grant, err := h.Grants.CibaGrant(ctx, tc.Tenant, authReqID)
	if errors.Is(err, ErrNotFound) {
		cibaPolls.WithLabelValues("unknown").Inc()
		return nil, oidc.ErrInvalidGrant().WithKind(oidc.KindNotFound).WithDescription("auth_req_id is invalid or has already been used")
	}
	if err != nil {
		return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to load ciba grant")
	}
	if grant.Grant.ClientID != tc.Client.ClientID {
		cibaPolls.WithLabelValues("client_mismatch").Inc()
		return nil, oidc.ErrInvalidGrant().WithDescription("auth_req_id was not issued to this client")
	}
	if grant.IsExpired(h.now()) {
		cibaPolls.WithLabelValues("expired").Inc()
		h.deleteGrant(ctx, grant)
		return nil, oidc.ErrExpiredToken().WithDescription("auth_req_id has expired")
	}

	switch grant.Status {
	case CibaGrantStatusPending:
		if h.Polls != nil {
			allowed, err := h.Polls.AllowPoll(ctx, tc.Tenant, authReqID, grant.Interval)
			if err != nil {
				return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to check polling interval")
			}
			if !allowed {
				cibaPolls.WithLabelValues("slow_down").Inc()
				return nil, oidc.ErrSlowDown().WithDescription("polling faster than the interval of %s", grant.Interval)
			}
		}
		cibaPolls.WithLabelValues("pending").Inc()
		return nil, oidc.ErrAuthorizationPending().WithDescription("the end-user has not yet been authenticated")
	case CibaGrantStatusDenied:
		cibaPolls.WithLabelValues("denied").Inc()
		h.deleteGrant(ctx, grant)
		return nil, oidc.ErrAccessDenied().WithDescription("the end-user denied the authorization request")
	case CibaGrantStatusAuthorized:
		consumed, err := h.Grants.ConsumeCibaGrant(ctx, tc.Tenant, authReqID)
		if errors.Is(err, ErrNotFound) {
			cibaPolls.WithLabelValues("unknown").Inc()
			return nil, oidc.ErrInvalidGrant().WithKind(oidc.KindNotFound).WithDescription("auth_req_id is invalid or has already been used")
		}
		if err != nil {
			return nil, oidc.ErrServerError().WithParent(err).WithDescription("unable to consume ciba grant")
		}
		cibaPolls.WithLabelValues("authorized").Inc()
		return &consumed.Grant, nil
	default:
		return nil, oidc.ErrServerError().WithDescription("ciba grant has unknown status (%s)", grant.Status)
	}
}

// deleteGrant removes a terminal grant. Failures are only recorded, the
// grant expires in storage anyway.
func (h *TokenRequestHandler) deleteGrant(ctx context.Context, grant *CibaGrant) {
	if err := h.Grants.DeleteCibaGrant(ctx, grant.Tenant, grant.AuthReqID); err != nil && !errors.Is(err, ErrNotFound) {
		loggerFromContext(ctx).WarnContext(ctx, "unable to delete ciba grant", "auth_req_id", grant.AuthReqID, "error", err)
	}
}
