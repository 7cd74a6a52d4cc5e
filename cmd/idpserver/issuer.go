package main

import (
	"context"
	"time"

	"github.com/idpserver/idp/pkg/oidc"
	"github.com/idpserver/idp/pkg/op"
)

const accessTokenLifetime = time.Hour

// opaqueTokenIssuer hands out random bearer tokens. Token persistence and
// signed tokens belong to the deployment embedding the provider.
type opaqueTokenIssuer struct{}

func (opaqueTokenIssuer) IssueToken(_ context.Context, request *op.TokenRequestContext, grant *op.AuthorizationGrant) (*oidc.AccessTokenResponse, error) {
	token, err := op.NewAuthReqID(32)
	if err != nil {
		return nil, err
	}
	scope := request.Value(oidc.ParamScope)
	if grant != nil {
		scope = grant.Scopes.String()
	}
	return &oidc.AccessTokenResponse{
		AccessToken: token,
		TokenType:   oidc.BearerToken,
		ExpiresIn:   uint64(accessTokenLifetime.Seconds()),
		Scope:       scope,
	}, nil
}
