package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

// BackupCodeAlphabet excludes visually ambiguous characters (0/O, 1/I).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultBackupCodeLength is the character count of one code, hyphen
// excluded.
const DefaultBackupCodeLength = 8

// GenerateBackupCodes returns count fresh codes of length characters,
// formatted in hyphenated halves (XXXX-XXXX). Each code is high-entropy
// and uniformly drawn from BackupCodeAlphabet.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count <= 0 || length < 6 || length%2 != 0 {
		return nil, errors.New("mfa: invalid backup code shape")
	}

	alphabetSize := big.NewInt(int64(len(BackupCodeAlphabet)))
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var b strings.Builder
		b.Grow(length + 1)
		for j := 0; j < length; j++ {
			if j == length/2 {
				b.WriteByte('-')
			}
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return nil, err
			}
			b.WriteByte(BackupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// CanonicalizeBackupCode uppercases a user-supplied code and strips
// hyphens and whitespace. Returns "" when the remainder contains
// characters outside the alphabet.
func CanonicalizeBackupCode(code string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(code))
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return ""
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			return ""
		}
	}
	return cleaned
}

// HashBackupCode derives the stored digest of a canonical code. The
// account ID salts the digest so identical codes held by different
// accounts never collide at rest.
func HashBackupCode(accountID, canonical string) [32]byte {
	return sha256.Sum256([]byte(accountID + "\x00" + canonical))
}
