package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventAccountLocked         = "account_locked"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventMFARequired           = "mfa_required"
	auditEventMFASuccess            = "mfa_success"
	auditEventMFAFailure            = "mfa_failure"
	auditEventMFAAttemptsExceeded   = "mfa_attempts_exceeded"
	auditEventMFAEnrolled           = "mfa_enrolled"
	auditEventBackupCodeUsed        = "backup_code_used"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventAccountDeactivated    = "account_deactivated"
)

type auditErrorCode string

const (
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrUserNotFound       auditErrorCode = "user_not_found"
	auditErrAccountLocked      auditErrorCode = "account_locked"
	auditErrAccountDisabled    auditErrorCode = "account_disabled"
	auditErrMFARequired        auditErrorCode = "mfa_required"
	auditErrMFAInvalid         auditErrorCode = "mfa_invalid"
	auditErrMFAExceeded        auditErrorCode = "mfa_attempts_exceeded"
	auditErrMFAReplay          auditErrorCode = "mfa_replay"
	auditErrTokenRejected      auditErrorCode = "token_rejected"
	auditErrPasswordPolicy     auditErrorCode = "password_policy"
	auditErrPasswordReuse      auditErrorCode = "password_reuse"
	auditErrConflict           auditErrorCode = "version_conflict"
	auditErrUnavailable        auditErrorCode = "backend_unavailable"
	auditErrInternal           auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadata map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := classifyAuditError(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func classifyAuditError(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAInvalid),
		errors.Is(err, ErrMFANotEnrolled),
		errors.Is(err, ErrMFAChallengeExpired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAChallengeExceeded):
		return auditErrMFAExceeded
	case errors.Is(err, ErrMFAReplay):
		return auditErrMFAReplay
	case errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrWrongTokenType),
		errors.Is(err, ErrFingerprintMismatch),
		errors.Is(err, ErrTokenTooOld),
		errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRejected
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrVersionConflict):
		return auditErrConflict
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrMFAUnavailable),
		errors.Is(err, ErrRevocationFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
