package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge/authcore/token"
)

// Login authenticates an email/password pair. On success it returns a
// token pair, or a pending MFA challenge when the account has a second
// factor enrolled. Any mismatch, including an unknown email, reports
// ErrInvalidCredentials.
//
// Attempts against an actively locked account are rejected with
// ErrAccountLocked before the password hasher runs, so a locked account
// costs neither hashing work nor a timing signal.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if email == "" || plaintext == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	account, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, map[string]string{
				"reason": "user_not_found",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if account.Status != AccountActive {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	if classifyLockout(account, e.now()) == lockoutActive {
		e.metricInc(MetricLoginLockedOut)
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Compare(plaintext, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		locked, recErr := e.recordLoginFailure(ctx, account.ID)
		if recErr != nil {
			e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, recErr, nil)
			return nil, recErr
		}
		e.metricInc(MetricLoginFailure)
		if locked {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventAccountLocked, false, account.ID, ErrAccountLocked, nil)
			return nil, ErrAccountLocked
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.resetLoginFailures(ctx, account.ID); err != nil {
		return nil, err
	}

	if account.MFAEnabled {
		challengeID, err := e.openMFAChallenge(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, account.ID, nil, nil)
		return &LoginResult{MFARequired: true, MFAChallenge: challengeID}, nil
	}

	result, err := e.issueTokenPair(ctx, token.Identity{
		SubjectID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, nil)
	return result, nil
}

func (e *Engine) openMFAChallenge(ctx context.Context, accountID string) (string, error) {
	challengeID := uuid.NewString()
	record := &mfaChallenge{
		AccountID: accountID,
		ExpiresAt: e.now().Add(e.config.MFA.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challengeID, record, e.config.MFA.ChallengeTTL); err != nil {
		return "", err
	}
	return challengeID, nil
}

// ConfirmLoginMFA completes a pending login by validating a TOTP or
// backup code against the challenged account. The challenge is single
// use: a successful confirmation consumes it, repeated failures burn its
// attempt budget and then delete it.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if challengeID == "" {
		return nil, ErrMFAChallengeExpired
	}

	record, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	account, err := e.loadAccount(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != AccountActive {
		return nil, ErrAccountDisabled
	}

	ok, err := e.verifyMFACode(ctx, account, code)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, err, nil)
		return nil, err
	}
	if !ok {
		exceeded, recErr := e.challenges.RecordFailure(ctx, challengeID, e.config.MFA.ChallengeMaxAttempts)
		if recErr != nil {
			return nil, recErr
		}
		e.metricInc(MetricMFAFailure)
		if exceeded {
			e.metricInc(MetricMFAChallengeExceeded)
			e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, account.ID, ErrMFAChallengeExceeded, nil)
			return nil, ErrMFAChallengeExceeded
		}
		e.emitAudit(ctx, auditEventMFAFailure, false, account.ID, ErrMFAInvalid, nil)
		return nil, ErrMFAInvalid
	}

	if err := e.challenges.Consume(ctx, challengeID); err != nil {
		return nil, err
	}

	result, err := e.issueTokenPair(ctx, token.Identity{
		SubjectID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, account.ID, nil, nil)
	return result, nil
}
