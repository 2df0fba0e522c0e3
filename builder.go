package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskforge/authcore/mfa"
	"github.com/taskforge/authcore/password"
	"github.com/taskforge/authcore/secret"
	"github.com/taskforge/authcore/token"
	"github.com/taskforge/authcore/tokencache"
)

// Builder assembles an [Engine]. The zero value is not usable; start
// with [New].
type Builder struct {
	config Config
	store  AccountStore
	cache  tokencache.Cache
	redis  redis.UniversalClient

	validator mfa.Validator
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the caller's persistence backend. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithRedis backs the token cache with a Redis client. Mutually
// exclusive with WithCache; the prefix and call timeout come from
// Config.Cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCache sets the token cache directly. Overrides WithRedis.
func (b *Builder) WithCache(cache tokencache.Cache) *Builder {
	b.cache = cache
	return b
}

// WithMFAValidator replaces the default TOTP validator. Used to swap in
// a different one-time-code algorithm or a test double.
func (b *Builder) WithMFAValidator(v mfa.Validator) *Builder {
	b.validator = v
	return b
}

// WithAuditSink enables audit dispatch to sink when Config.Audit.Enabled
// is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine clock. Tests use it to drive lockout
// expiry and token freshness deterministically.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the cryptographic components,
// and returns the immutable Engine. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}

	cache := b.cache
	if cache == nil {
		if b.redis != nil {
			cache = tokencache.NewRedis(b.redis, cfg.Cache.Prefix, cfg.Cache.CallTimeout)
		} else {
			cache = tokencache.NewMemory()
		}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:  cfg,
		store:   b.store,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}

	hasher, err := password.New(password.Config{
		MemoryKB:    cfg.Password.MemoryKB,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	if len(cfg.Encryption.Key) > 0 {
		cipher, err := secret.NewCipher(cfg.Encryption.Key)
		if err != nil {
			return nil, err
		}
		engine.cipher = cipher
	}

	tokens, err := token.NewService(token.Config{
		AccessKey:          cfg.Token.AccessKey,
		RefreshKey:         cfg.Token.RefreshKey,
		Issuer:             cfg.Token.Issuer,
		AccessTTL:          cfg.Token.AccessTTL,
		RefreshTTL:         cfg.Token.RefreshTTL,
		MaxTokenAge:        cfg.Token.MaxTokenAge,
		Leeway:             cfg.Token.Leeway,
		FingerprintEnabled: cfg.Token.FingerprintEnabled,
		PositiveCacheTTL:   cfg.Token.PositiveCacheTTL,
	}, cache, token.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens

	engine.challenges = newMFAChallengeStore(cache, now)

	if b.validator != nil {
		engine.validator = b.validator
	} else {
		engine.validator = mfa.NewTOTP(mfa.TOTPConfig{
			Issuer:     cfg.MFA.Issuer,
			Digits:     cfg.MFA.Digits,
			PeriodSec:  uint(cfg.MFA.PeriodSec),
			Skew:       uint(cfg.MFA.Skew),
			SecretSize: uint(cfg.MFA.SecretSize),
		})
	}

	b.built = true

	return engine, nil
}
