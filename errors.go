package authcore

import (
	"errors"

	"github.com/taskforge/authcore/password"
	"github.com/taskforge/authcore/secret"
	"github.com/taskforge/authcore/token"
)

var (
	// ErrInvalidCredentials is returned for any email/password mismatch,
	// including unknown identifiers, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by account operations addressed by ID.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists rejects Create calls colliding on ID or email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountLocked rejects login attempts while a lockout is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled rejects operations on a deactivated account.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrMFARequired signals that credentials were valid but a second
	// factor must be confirmed before tokens are issued.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalid reports malformed or non-matching MFA input.
	ErrMFAInvalid = errors.New("mfa code invalid")
	// ErrMFANotEnrolled is returned when an MFA operation targets an
	// account without an enrolled second factor.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFAChallengeExpired covers unknown and timed-out login challenges.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")
	// ErrMFAChallengeExceeded is returned once a challenge has burned its
	// attempt budget. The challenge is deleted; login must restart.
	ErrMFAChallengeExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrMFAReplay reports a challenge consumed concurrently by another
	// confirmation of the same login.
	ErrMFAReplay = errors.New("mfa challenge replay detected")
	// ErrMFAUnavailable wraps challenge-store backend failures.
	ErrMFAUnavailable = errors.New("mfa backend unavailable")

	// ErrPasswordPolicy reports a new password that violates the
	// configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse rejects a password change that reuses a hash from
	// the account's recent history.
	ErrPasswordReuse = errors.New("new password was used recently")

	// ErrVersionConflict is returned by AccountStore.Update when the
	// account changed since it was read. Callers reload and retry.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrStoreUnavailable wraps AccountStore backend failures.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or incompletely constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Token verification failures, re-exported so integrators only need this
// package to classify engine errors.
var (
	ErrMalformedToken      = token.ErrMalformedToken
	ErrSignatureInvalid    = token.ErrSignatureInvalid
	ErrTokenExpired        = token.ErrTokenExpired
	ErrWrongTokenType      = token.ErrWrongTokenType
	ErrFingerprintMismatch = token.ErrFingerprintMismatch
	ErrTokenTooOld         = token.ErrTokenTooOld
	ErrTokenRevoked        = token.ErrTokenRevoked
	ErrRevocationFailed    = token.ErrRevocationFailed
)

// Cryptographic primitive failures, re-exported for the same reason.
var (
	ErrHashing          = password.ErrWorkFactor
	ErrHashMalformed    = password.ErrMalformedHash
	ErrDecryptionFailed = secret.ErrDecryptionFailed
)
