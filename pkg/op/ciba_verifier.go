package op

import (
	"context"
	"unicode/utf8"

	"github.com/idpserver/idp/pkg/oidc"
)

type cibaCheck func(rc *CibaRequestContext) *oidc.Error

// cibaBaseChecks run for every backchannel request, in this order.
var cibaBaseChecks = []cibaCheck{
	checkCibaGrantEnabled,
	checkCibaOpenIDScope,
	checkCibaHint,
	checkCibaDeliveryMode,
	checkCibaBindingMessage,
	checkCibaUserCode,
}

// CibaRequestVerifier is the backchannel verifier chain: the base checks,
// the checks registered for the computed profile and, for the request
// object pattern, the request object checks.
type CibaRequestVerifier struct {
	Profiles      map[oidc.CibaProfile][]cibaCheck
	RequestObject *RequestObjectVerifier
}

func NewCibaRequestVerifier(requestObject *RequestObjectVerifier) *CibaRequestVerifier {
	return &CibaRequestVerifier{
		Profiles: map[oidc.CibaProfile][]cibaCheck{
			oidc.CibaProfileCIBA:     nil,
			oidc.CibaProfileFapiCiba: nil,
		},
		RequestObject: requestObject,
	}
}

func (v *CibaRequestVerifier) Verify(ctx context.Context, rc *CibaRequestContext) error {
	ctx, span := tracer.Start(ctx, "CibaRequestVerifier.Verify")
	defer span.End()

	if err := runCibaChecks(rc, cibaBaseChecks); err != nil {
		return err
	}
	checks, ok := v.Profiles[rc.Profile]
	if !ok {
		return oidc.ErrServerError().WithDescription("unsupported ciba profile (%s)", rc.Profile)
	}
	if err := runCibaChecks(rc, checks); err != nil {
		return err
	}
	if !rc.IsRequestObjectPattern() {
		return nil
	}
	requestObject := v.RequestObject
	if requestObject == nil {
		requestObject = NewRequestObjectVerifier(nil)
	}
	return requestObject.Verify(ctx, rc.Tenant, rc.Jose, rc.Server, rc.Client)
}

func runCibaChecks(rc *CibaRequestContext, checks []cibaCheck) error {
	for _, check := range checks {
		if err := check(rc); err != nil {
			return err
		}
	}
	return nil
}

func checkCibaGrantEnabled(rc *CibaRequestContext) *oidc.Error {
	if !rc.Server.IsSupportedGrantType(oidc.GrantTypeCIBA) || !rc.Client.IsGrantTypeAllowed(oidc.GrantTypeCIBA) {
		return oidc.ErrUnauthorizedClient().WithDescription("authorization server or client does not support ciba grant")
	}
	return nil
}

func checkCibaOpenIDScope(rc *CibaRequestContext) *oidc.Error {
	if !rc.HasOpenIDScope() {
		return oidc.ErrInvalidScope().WithDescription("backchannel request does not contain openid scope")
	}
	return nil
}

func checkCibaHint(rc *CibaRequestContext) *oidc.Error {
	if !rc.HasAnyHint() {
		return oidc.ErrInvalidRequest().WithDescription("backchannel request does not have any hint, must contains login_hint or login_hint_token or id_token_hint")
	}
	return nil
}

func checkCibaDeliveryMode(rc *CibaRequestContext) *oidc.Error {
	mode := rc.Request.DeliveryMode
	if len(rc.Server.BackchannelTokenDeliveryModesSupported) > 0 && !rc.Server.IsSupportedDeliveryMode(mode) {
		return oidc.ErrUnauthorizedClient().WithDescription("backchannel token delivery mode (%s) is not supported", mode)
	}
	if mode != oidc.DeliveryModePoll && rc.values.ClientNotificationToken == "" {
		return oidc.ErrInvalidRequest().WithDescription("backchannel request must contain client_notification_token for %s delivery mode", mode)
	}
	return nil
}

func checkCibaBindingMessage(rc *CibaRequestContext) *oidc.Error {
	if utf8.RuneCountInString(rc.values.BindingMessage) > oidc.MaxBindingMessageLength {
		return oidc.ErrInvalidBindingMessage().WithDescription("binding_message must not be longer than %d characters", oidc.MaxBindingMessageLength)
	}
	return nil
}

func checkCibaUserCode(rc *CibaRequestContext) *oidc.Error {
	if rc.IsSupportedUserCode() && rc.values.UserCode == "" {
		return oidc.ErrMissingUserCode().WithDescription("backchannel request must contain user_code")
	}
	return nil
}
