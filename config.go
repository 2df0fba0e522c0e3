package authcore

import (
	"errors"
	"time"
)

// Config groups every tunable of the engine. [New] starts from
// [DefaultConfig]; a Config passed to [Builder.WithConfig] replaces it
// wholesale and is treated as immutable after Build.
type Config struct {
	Password       PasswordConfig
	PasswordPolicy PasswordPolicyConfig
	Token          TokenConfig
	Lockout        LockoutConfig
	MFA            MFAConfig
	Encryption     EncryptionConfig
	Cache          CacheConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id work factors.
type PasswordConfig struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordPolicyConfig constrains new passwords on change.
type PasswordPolicyConfig struct {
	MinLength int
	// HistoryDepth is how many prior hashes are retained and checked
	// against reuse. Zero disables the reuse check.
	HistoryDepth int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the signing keys and freshness policy. AccessKey
// and RefreshKey must be distinct secrets of at least 32 bytes.
type TokenConfig struct {
	AccessKey  []byte
	RefreshKey []byte
	Issuer     string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// MaxTokenAge bounds token age independently of the expiry claim.
	MaxTokenAge time.Duration
	Leeway      time.Duration

	FingerprintEnabled bool

	// PositiveCacheTTL bounds how long verified claims may be served
	// without re-checking the signature. Zero disables the cache.
	PositiveCacheTTL time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the per-account failed-login tracker.
type LockoutConfig struct {
	// Threshold is the failed-attempt count that triggers a lock.
	Threshold int
	// Duration is how long a triggered lock holds before auto-unlock.
	Duration time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig tunes TOTP validation, backup codes, and the pending-login
// challenge window.
type MFAConfig struct {
	Issuer     string
	Digits     int
	PeriodSec  int
	Skew       int
	SecretSize int

	BackupCodeCount  int
	BackupCodeLength int

	// ChallengeTTL is how long a pending MFA login challenge stays
	// confirmable after the password step.
	ChallengeTTL time.Duration
	// ChallengeMaxAttempts is the per-challenge attempt budget.
	ChallengeMaxAttempts int
}

// EncryptionConfig carries the 32-byte AES-256-GCM key protecting stored
// TOTP seeds.
type EncryptionConfig struct {
	Key []byte
}

/*
====================================
CACHE / AUDIT / METRICS CONFIG
====================================
*/

// CacheConfig tunes the token cache integration.
type CacheConfig struct {
	// Prefix namespaces every cache key when sharing a Redis database.
	Prefix string
	// CallTimeout bounds each cache round-trip.
	CallTimeout time.Duration
}

// AuditConfig tunes the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking: events beyond the buffer are
	// counted and discarded instead of backpressuring the hot path.
	DropIfFull bool
}

// MetricsConfig tunes the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the hardened defaults. Signing and encryption
// keys have no default; Build fails without them.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			MemoryKB:    64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordPolicy: PasswordPolicyConfig{
			MinLength:    10,
			HistoryDepth: 5,
		},
		Token: TokenConfig{
			Issuer:             "authcore",
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         7 * 24 * time.Hour,
			MaxTokenAge:        24 * time.Hour,
			Leeway:             0,
			FingerprintEnabled: true,
			PositiveCacheTTL:   5 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:               "authcore",
			Digits:               6,
			PeriodSec:            30,
			Skew:                 1,
			SecretSize:           20,
			BackupCodeCount:      10,
			BackupCodeLength:     8,
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
		},
		Cache: CacheConfig{
			Prefix:      "ac",
			CallTimeout: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessKey = cloneBytes(cfg.Token.AccessKey)
	out.Token.RefreshKey = cloneBytes(cfg.Token.RefreshKey)
	out.Encryption.Key = cloneBytes(cfg.Encryption.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely with.
// Key length and distinctness are enforced again by the token service.
func (c *Config) Validate() error {
	if len(c.Token.AccessKey) == 0 || len(c.Token.RefreshKey) == 0 {
		return errors.New("token signing keys required")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if c.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.MFA.ChallengeTTL <= 0 || c.MFA.ChallengeMaxAttempts < 1 {
		return errors.New("mfa challenge window invalid")
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeLength < 6 {
		return errors.New("backup code parameters invalid")
	}
	if c.PasswordPolicy.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}
	if c.PasswordPolicy.HistoryDepth < 0 {
		return errors.New("password history depth must not be negative")
	}
	if c.Cache.CallTimeout <= 0 {
		return errors.New("cache call timeout must be positive")
	}
	return nil
}
