package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Register creates an active account with a hashed password and returns
// its ID. Email collisions report ErrAccountExists.
func (e *Engine) Register(ctx context.Context, email, plaintext, role string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if email == "" {
		return "", errors.New("email required")
	}
	if len(plaintext) < e.config.PasswordPolicy.MinLength {
		return "", ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return "", err
	}

	now := e.now().UTC()
	account := &UserAccount{
		ID:           uuid.NewString(),
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		Status:       AccountActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return "", ErrAccountExists
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account.ID, nil
}

// ChangePassword verifies the current password, enforces the password
// policy and reuse history, and installs the new hash. The replaced hash
// is pushed onto the account's bounded history. Existing tokens are not
// revoked; session invalidation stays with the caller.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPlaintext, newPlaintext string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(newPlaintext) < e.config.PasswordPolicy.MinLength {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordPolicy
	}

	for i := 0; i < casRetries; i++ {
		account, err := e.loadAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status != AccountActive {
			return ErrAccountDisabled
		}

		ok, err := e.hasher.Compare(oldPlaintext, account.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			e.metricInc(MetricPasswordChangeFailure)
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}

		reused, err := e.passwordReused(newPlaintext, account)
		if err != nil {
			return err
		}
		if reused {
			e.metricInc(MetricPasswordChangeFailure)
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, ErrPasswordReuse, nil)
			return ErrPasswordReuse
		}

		newHash, err := e.hasher.Hash(newPlaintext)
		if err != nil {
			return err
		}

		pushPasswordHistory(account, e.config.PasswordPolicy.HistoryDepth)
		account.PasswordHash = newHash
		account.UpdatedAt = e.now().UTC()

		err = e.store.Update(ctx, account)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		e.metricInc(MetricPasswordChangeSuccess)
		e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, nil, nil)
		return nil
	}
	return ErrVersionConflict
}

// passwordReused checks the candidate against the current hash and the
// retained history. Each check is a full argon2 comparison; the history
// depth bounds the cost.
func (e *Engine) passwordReused(plaintext string, account *UserAccount) (bool, error) {
	if e.config.PasswordPolicy.HistoryDepth == 0 {
		return false, nil
	}

	hashes := append([]string{account.PasswordHash}, account.PasswordHistory...)
	for _, hash := range hashes {
		match, err := e.hasher.Compare(plaintext, hash)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// pushPasswordHistory retires the current hash into the history, newest
// first, trimming to depth.
func pushPasswordHistory(account *UserAccount, depth int) {
	if depth <= 0 {
		return
	}
	history := append([]string{account.PasswordHash}, account.PasswordHistory...)
	if len(history) > depth {
		history = history[:depth]
	}
	account.PasswordHistory = history
}

// Deactivate soft-disables an account. Logins and MFA confirmations are
// rejected immediately; outstanding tokens expire on their own schedule.
func (e *Engine) Deactivate(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	for i := 0; i < casRetries; i++ {
		account, err := e.loadAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == AccountDisabled {
			return nil
		}

		account.Status = AccountDisabled
		account.LockedUntil = time.Time{}
		account.FailedLoginCount = 0
		account.UpdatedAt = e.now().UTC()

		err = e.store.Update(ctx, account)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		e.metricInc(MetricAccountDeactivated)
		e.emitAudit(ctx, auditEventAccountDeactivated, true, account.ID, nil, nil)
		return nil
	}
	return ErrVersionConflict
}
