// Package mfa holds the pluggable time-based one-time-code provider and
// the backup-code primitives used for second-factor verification. The
// TOTP algorithm itself is a dependency behind the Validator interface;
// the default implementation wraps github.com/pquerna/otp.
package mfa

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Validator generates enrollment seeds and checks time-based codes.
// Implementations must tolerate clock drift per their configuration and
// must never reveal why a code failed.
type Validator interface {
	// Enroll produces a fresh random seed for account, returning the
	// base32-encoded secret and an otpauth:// provisioning URI.
	Enroll(account string) (secret, uri string, err error)

	// Validate reports whether code matches the seed at time at. A
	// malformed code is simply false; the caller distinguishes malformed
	// input before calling.
	Validate(secret, code string, at time.Time) bool

	// Digits returns the expected code length, used by callers to reject
	// malformed input up front.
	Digits() int
}

// TOTPConfig tunes the default Validator.
type TOTPConfig struct {
	Issuer     string
	Digits     int
	PeriodSec  uint
	Skew       uint // accepted steps of drift on each side, default 1
	SecretSize uint // seed bytes, default 20
}

// TOTP is the default Validator, backed by pquerna/otp.
type TOTP struct {
	cfg TOTPConfig
}

// NewTOTP applies defaults and returns the standard validator.
func NewTOTP(cfg TOTPConfig) *TOTP {
	if cfg.Issuer == "" {
		cfg.Issuer = "authcore"
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.PeriodSec == 0 {
		cfg.PeriodSec = 30
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = 20
	}
	return &TOTP{cfg: cfg}
}

func (t *TOTP) otpDigits() otp.Digits {
	if t.cfg.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

// Enroll generates a fresh seed bound to the account label.
func (t *TOTP) Enroll(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.cfg.Issuer,
		AccountName: account,
		Period:      t.cfg.PeriodSec,
		SecretSize:  t.cfg.SecretSize,
		Digits:      t.otpDigits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Validate checks code against secret at the given instant, accepting the
// configured skew on either side of the current window.
func (t *TOTP) Validate(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    t.cfg.PeriodSec,
		Skew:      t.cfg.Skew,
		Digits:    t.otpDigits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Digits returns the configured code length.
func (t *TOTP) Digits() int {
	return t.cfg.Digits
}

// IsWellFormedCode reports whether code looks like a time-based code of
// the given length: exactly digits numeric characters.
func IsWellFormedCode(code string, digits int) bool {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
