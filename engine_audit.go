package goGuard

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventMFAEnrollmentStarted   = "mfa_enrollment_started"
	auditEventMFAEnrollmentFailed    = "mfa_enrollment_failed"
	auditEventMFAEnabled             = "mfa_enabled"
	auditEventMFADisabled            = "mfa_disabled"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventMFAAttemptsExceeded    = "mfa_attempts_exceeded"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodesRegenerated = "backup_codes_regenerated"
	auditEventKeyCreated             = "client_key_created"
	auditEventKeyRevoked             = "client_key_revoked"
	auditEventKeyVerifyFailed        = "client_key_verify_failed"
	auditEventKeyDomainRejected      = "client_key_domain_rejected"
	auditEventKeyRouteRejected       = "client_key_route_rejected"
	auditEventKeyRateLimited         = "client_key_rate_limited"
)

// AuditErrorCode is the stable string recorded in [AuditEvent.Error].
type AuditErrorCode string

const (
	AuditErrInvalidToken      AuditErrorCode = "invalid_token"
	AuditErrInvalidEncoding   AuditErrorCode = "invalid_encoding"
	AuditErrWeakSecret        AuditErrorCode = "weak_secret"
	AuditErrKeyNotFound       AuditErrorCode = "key_not_found"
	AuditErrKeyInactive       AuditErrorCode = "key_inactive"
	AuditErrKeyExpired        AuditErrorCode = "key_expired"
	AuditErrDomainNotAllowed  AuditErrorCode = "domain_not_allowed"
	AuditErrRouteNotAllowed   AuditErrorCode = "route_not_allowed"
	AuditErrRateLimited       AuditErrorCode = "rate_limited"
	AuditErrSessionAbsent     AuditErrorCode = "session_absent"
	AuditErrSessionStale      AuditErrorCode = "session_stale"
	AuditErrRoleInsufficient  AuditErrorCode = "role_insufficient"
	AuditErrTenantMissing     AuditErrorCode = "tenant_association_missing"
	AuditErrAttemptsExceeded  AuditErrorCode = "attempts_exceeded"
	AuditErrUnavailable       AuditErrorCode = "store_unavailable"
	AuditErrMFANotEnabled     AuditErrorCode = "mfa_not_enabled"
	AuditErrMFAAlreadyEnabled AuditErrorCode = "mfa_already_enabled"
	AuditErrInvalidRequest    AuditErrorCode = "invalid_request"
	AuditErrInternal          AuditErrorCode = "internal_error"
)

// EmitAudit sends event through the engine's dispatcher, which fills a missing
// timestamp, client IP, tenant, path and key id from ctx. It is a no-op when audit is
// disabled, so callers outside the engine (the HTTP gateway) share one sink.
func (e *Engine) EmitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	sessionID string,
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
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := AuditCode(err); code != "" {
		event.Error = string(code)
	}

	e.EmitAudit(ctx, event)
}

// AuditCode maps an error from this package to its [AuditErrorCode]. It
// returns "" for nil.
func AuditCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidVerificationToken):
		return AuditErrInvalidToken
	case errors.Is(err, ErrInvalidEncoding):
		return AuditErrInvalidEncoding
	case errors.Is(err, ErrWeakSecret):
		return AuditErrWeakSecret
	case errors.Is(err, ErrKeyNotFound):
		return AuditErrKeyNotFound
	case errors.Is(err, ErrKeyInactive):
		return AuditErrKeyInactive
	case errors.Is(err, ErrKeyExpired):
		return AuditErrKeyExpired
	case errors.Is(err, ErrKeyDomainNotAllowed):
		return AuditErrDomainNotAllowed
	case errors.Is(err, ErrKeyRouteNotAllowed):
		return AuditErrRouteNotAllowed
	case errors.Is(err, ErrRateLimitExceeded):
		return AuditErrRateLimited
	case errors.Is(err, ErrSessionAbsent):
		return AuditErrSessionAbsent
	case errors.Is(err, ErrSessionStale):
		return AuditErrSessionStale
	case errors.Is(err, ErrRoleInsufficient):
		return AuditErrRoleInsufficient
	case errors.Is(err, ErrTenantAssociationMissing):
		return AuditErrTenantMissing
	case errors.Is(err, ErrMFAAttemptsExceeded):
		return AuditErrAttemptsExceeded
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return AuditErrUnavailable
	case errors.Is(err, ErrMFANotEnabled):
		return AuditErrMFANotEnabled
	case errors.Is(err, ErrMFAAlreadyEnabled):
		return AuditErrMFAAlreadyEnabled
	case errors.Is(err, ErrInvalidKeyOptions),
		errors.Is(err, ErrUserRequired),
		errors.Is(err, ErrTenantRequired):
		return AuditErrInvalidRequest
	default:
		return AuditErrInternal
	}
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
