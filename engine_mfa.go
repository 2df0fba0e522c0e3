package authcore

import (
	"context"
	"errors"

	"github.com/taskforge/authcore/mfa"
	"github.com/taskforge/authcore/secret"
)

// EnrollMFA provisions a fresh TOTP seed and backup-code set for the
// account. The seed is stored encrypted and the backup codes as SHA-256
// hashes; the returned plaintext values are shown to the caller exactly
// once and cannot be retrieved again.
func (e *Engine) EnrollMFA(ctx context.Context, accountID string) (*MFAEnrollment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.cipher == nil {
		return nil, errors.New("mfa enrollment requires an encryption key")
	}

	for i := 0; i < casRetries; i++ {
		account, err := e.loadAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account.Status != AccountActive {
			return nil, ErrAccountDisabled
		}

		seed, uri, err := e.validator.Enroll(account.Email)
		if err != nil {
			return nil, err
		}

		encrypted, err := e.cipher.EncryptBlob([]byte(seed))
		if err != nil {
			return nil, err
		}

		codes, err := mfa.GenerateBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
		if err != nil {
			return nil, err
		}
		hashes := make([][32]byte, len(codes))
		for j, code := range codes {
			hashes[j] = mfa.HashBackupCode(account.ID, mfa.CanonicalizeBackupCode(code))
		}

		account.MFAEnabled = true
		account.MFASecret = encrypted
		account.BackupCodeHashes = hashes

		err = e.store.Update(ctx, account)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.emitAudit(ctx, auditEventMFAEnrolled, true, account.ID, nil, nil)
		return &MFAEnrollment{
			Secret:      seed,
			URI:         uri,
			BackupCodes: codes,
		}, nil
	}
	return nil, ErrVersionConflict
}

// VerifyMFA validates code for the account: first as a time-based code
// against the decrypted seed with one window of skew tolerance, then as
// a backup code. A matching backup code is atomically consumed so it can
// never be spent twice, even by concurrent attempts.
//
// A code that simply does not match returns (false, nil). ErrMFAInvalid
// is reserved for malformed input.
func (e *Engine) VerifyMFA(ctx context.Context, accountID, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	account, err := e.loadAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return e.verifyMFACode(ctx, account, code)
}

func (e *Engine) verifyMFACode(ctx context.Context, account *UserAccount, code string) (bool, error) {
	if !account.MFAEnabled {
		return false, ErrMFANotEnrolled
	}

	wellFormedTOTP := mfa.IsWellFormedCode(code, e.validator.Digits())
	canonicalBackup := mfa.CanonicalizeBackupCode(code)
	if !wellFormedTOTP && len(canonicalBackup) != e.config.MFA.BackupCodeLength {
		return false, ErrMFAInvalid
	}

	if wellFormedTOTP {
		ok, err := e.validateTOTP(account, code)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if len(canonicalBackup) == e.config.MFA.BackupCodeLength {
		hash := mfa.HashBackupCode(account.ID, canonicalBackup)
		consumed, err := e.store.ConsumeBackupCode(ctx, account.ID, hash)
		if err != nil {
			return false, err
		}
		if consumed {
			e.metricInc(MetricBackupCodeUsed)
			e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, nil, nil)
			return true, nil
		}
	}

	return false, nil
}

func (e *Engine) validateTOTP(account *UserAccount, code string) (bool, error) {
	if e.cipher == nil || len(account.MFASecret) == 0 {
		return false, ErrMFANotEnrolled
	}

	seed, err := e.cipher.DecryptBlob(account.MFASecret)
	if err != nil {
		return false, err
	}
	defer secret.Zero(seed)

	return e.validator.Validate(string(seed), code, e.now()), nil
}
