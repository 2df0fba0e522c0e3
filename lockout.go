package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// casRetries bounds optimistic-concurrency retries against the account
// store when concurrent attempts race on the same account.
const casRetries = 4

// lockoutState is the decision for a single login attempt against an
// account's lockout fields, taken before any password work.
type lockoutState uint8

const (
	lockoutClear lockoutState = iota
	// lockoutActive rejects the attempt outright; the password hasher
	// must not run.
	lockoutActive
	// lockoutLapsed means a previous lock has expired. The attempt
	// proceeds, and a subsequent failure restarts the count at 1.
	lockoutLapsed
)

func classifyLockout(account *UserAccount, now time.Time) lockoutState {
	switch {
	case account.LockedUntil.IsZero():
		return lockoutClear
	case now.Before(account.LockedUntil):
		return lockoutActive
	default:
		return lockoutLapsed
	}
}

// nextLockout applies one failed attempt to the account's lockout fields
// and reports whether the account just transitioned to locked. A lapsed
// lock restarts the count at 1 instead of accumulating.
func nextLockout(account *UserAccount, now time.Time, cfg LockoutConfig) (locked bool) {
	if classifyLockout(account, now) == lockoutLapsed {
		account.FailedLoginCount = 0
		account.LockedUntil = time.Time{}
	}

	account.FailedLoginCount++
	if account.FailedLoginCount >= cfg.Threshold {
		account.LockedUntil = now.Add(cfg.Duration)
		return true
	}
	return false
}

// recordLoginFailure commits one failed attempt with a compare-and-swap
// loop. The write runs on a context detached from the caller's: an
// abandoned login still counts.
func (e *Engine) recordLoginFailure(ctx context.Context, accountID string) (bool, error) {
	detached := context.WithoutCancel(ctx)

	for i := 0; i < casRetries; i++ {
		account, err := e.loadAccount(detached, accountID)
		if err != nil {
			return false, err
		}

		locked := nextLockout(account, e.now(), e.config.Lockout)

		err = e.store.Update(detached, account)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return locked, nil
	}
	return false, ErrVersionConflict
}

// resetLoginFailures clears the counter and any lapsed lock after a
// successful credential check. A no-op when there is nothing to clear.
func (e *Engine) resetLoginFailures(ctx context.Context, accountID string) error {
	detached := context.WithoutCancel(ctx)

	for i := 0; i < casRetries; i++ {
		account, err := e.loadAccount(detached, accountID)
		if err != nil {
			return err
		}
		if account.FailedLoginCount == 0 && account.LockedUntil.IsZero() {
			return nil
		}

		account.FailedLoginCount = 0
		account.LockedUntil = time.Time{}

		err = e.store.Update(detached, account)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}
	return ErrVersionConflict
}
