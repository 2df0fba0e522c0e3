package authcore

import (
	"context"
	"time"

	"github.com/taskforge/authcore/token"
)

// AccountStatus represents the lifecycle state of a user account.
// Lockout is not a status: it is tracked by the lockout fields on
// [UserAccount] and clears automatically.
type AccountStatus uint8

const (
	// AccountActive marks a normally usable account.
	AccountActive AccountStatus = iota
	// AccountDisabled marks a deactivated account. Logins and token
	// issuance are rejected; existing tokens expire naturally.
	AccountDisabled
	// AccountDeleted marks a soft-deleted account.
	AccountDeleted
)

// UserAccount is the full account record exchanged with [AccountStore].
// Version is a compare-and-swap token: every successful Update must
// advance it, and Update with a stale Version fails with
// ErrVersionConflict.
type UserAccount struct {
	ID    string
	Email string
	Role  string

	PasswordHash string
	// PasswordHistory holds the most recent prior hashes, newest first,
	// bounded by Config.PasswordPolicy.HistoryDepth.
	PasswordHistory []string

	Status AccountStatus

	MFAEnabled bool
	// MFASecret is the TOTP seed encrypted with the engine's cipher.
	// Never the plaintext seed.
	MFASecret []byte
	// BackupCodeHashes holds SHA-256 hashes of unused backup codes.
	BackupCodeHashes [][32]byte

	FailedLoginCount int
	// LockedUntil is the lockout deadline; the zero time means unlocked.
	LockedUntil time.Time

	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account's lockout is active at now.
func (a *UserAccount) Locked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// Clone returns a deep copy so engine mutations never alias store-owned
// slices.
func (a *UserAccount) Clone() *UserAccount {
	if a == nil {
		return nil
	}
	cp := *a
	cp.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	cp.MFASecret = append([]byte(nil), a.MFASecret...)
	cp.BackupCodeHashes = append([][32]byte(nil), a.BackupCodeHashes...)
	return &cp
}

// AccountStore is the persistence interface callers implement to
// integrate authcore with their user database.
//
// Update is optimistic: the store must compare the record's Version
// against the stored one, reject mismatches with ErrVersionConflict, and
// advance the version atomically with the write. ConsumeBackupCode must
// be an atomic compare-and-delete so a backup code can be spent at most
// once even under concurrent verification attempts.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*UserAccount, error)
	GetByID(ctx context.Context, id string) (*UserAccount, error)
	Create(ctx context.Context, account *UserAccount) error
	Update(ctx context.Context, account *UserAccount) error
	ConsumeBackupCode(ctx context.Context, accountID string, hash [32]byte) (bool, error)
}

// LoginResult is returned by [Engine.Login], [Engine.ConfirmLoginMFA],
// and [Engine.RefreshTokens]. When the account requires a second factor,
// MFARequired is true, the token fields are empty, and MFAChallenge
// carries the opaque challenge ID for [Engine.ConfirmLoginMFA].
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  int64
	RefreshExpiresIn int64
	// Fingerprint binds both tokens to the issuing context. The caller
	// transports it out of band (e.g. an HttpOnly cookie) and presents it
	// on every verify.
	Fingerprint string

	MFARequired  bool
	MFAChallenge string
}

// MFAEnrollment is returned by [Engine.EnrollMFA] exactly once. The
// plaintext secret and backup codes are not retrievable afterwards.
type MFAEnrollment struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// AccessClaims re-exports the verified token payload type so integrators
// can consume [Engine.VerifyAccess] without importing the token package.
type AccessClaims = token.Claims
