package goFactor

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goFactor/factor"
)

const (
	auditEventSignInSuccess         = "signin_success"
	auditEventSignInFailure         = "signin_failure"
	auditEventTwoFactorRequired     = "two_factor_required"
	auditEventFactorSuccess         = "factor_success"
	auditEventFactorFailure         = "factor_failure"
	auditEventRemoteUnavailable     = "factor_remote_unavailable"
	auditEventCredentialCompromised = "credential_compromised"
	auditEventDeviceRegistered      = "device_registered"
	auditEventRememberIssued        = "remember_issued"
	auditEventChallengeIssued       = "challenge_issued"
)

// AuditErrorCode is the stable, non-sensitive classification recorded in
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredential    AuditErrorCode = "invalid_credential"
	auditErrFactorRejected       AuditErrorCode = "factor_rejected"
	auditErrFactorNotConfigured  AuditErrorCode = "factor_not_configured"
	auditErrRemoteUnavailable    AuditErrorCode = "remote_unavailable"
	auditErrConfigurationInvalid AuditErrorCode = "configuration_invalid"
	auditErrStampMismatch        AuditErrorCode = "stamp_mismatch"
	auditErrCounterReplay        AuditErrorCode = "counter_replay"
	auditErrChallengeMissing     AuditErrorCode = "challenge_missing"
	auditErrChallengeToken       AuditErrorCode = "challenge_token_invalid"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	kind *factor.Kind,
	deviceID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		DeviceID:    deviceID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if kind != nil {
		event.Factor = kind.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	// Causes first: flows wrap them in the generic rejection errors.
	switch {
	case errors.Is(err, ErrStampMismatch):
		return auditErrStampMismatch
	case errors.Is(err, ErrCounterReplay):
		return auditErrCounterReplay
	case errors.Is(err, ErrRemoteUnavailable):
		return auditErrRemoteUnavailable
	case errors.Is(err, factor.ErrChallengeNotFound):
		return auditErrChallengeMissing
	case errors.Is(err, ErrChallengeTokenInvalid):
		return auditErrChallengeToken
	case errors.Is(err, ErrConfigurationInvalid):
		return auditErrConfigurationInvalid
	case errors.Is(err, ErrFactorNotConfigured):
		return auditErrFactorNotConfigured
	case errors.Is(err, ErrFactorRejected):
		return auditErrFactorRejected
	case errors.Is(err, ErrInvalidCredential):
		return auditErrInvalidCredential
	default:
		return auditErrInternal
	}
}
