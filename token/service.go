package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskforge/authcore/tokencache"
)

// Verification failures. Each is distinct so callers can audit the precise
// reason without conflating them into one generic rejection.
var (
	ErrMalformedToken      = errors.New("token is malformed")
	ErrSignatureInvalid    = errors.New("token signature is invalid")
	ErrTokenExpired        = errors.New("token has expired")
	ErrWrongTokenType      = errors.New("token type does not match expected type")
	ErrFingerprintMismatch = errors.New("token fingerprint mismatch")
	ErrTokenTooOld         = errors.New("token exceeds maximum age")
	ErrTokenRevoked        = errors.New("token has been revoked")

	// ErrRevocationFailed wraps a cache write failure during rotation or
	// revoke. A rotation that cannot revoke its predecessor fails whole.
	ErrRevocationFailed = errors.New("token revocation failed")

	// ErrConfig reports an unusable Service configuration.
	ErrConfig = errors.New("invalid token service config")
)

const (
	// MinKeyLen is the minimum accepted signing key length in bytes.
	MinKeyLen = 32

	fingerprintBytes = 32

	positiveKeyPrefix = "tok:"
	revokedKeyPrefix  = "rvk:"

	// minRevocationTTL floors the negative-list TTL so a marker for an
	// almost-expired token still outlives in-flight verifications.
	minRevocationTTL = time.Second
)

// Config carries the signing keys and freshness policy for a Service.
type Config struct {
	// AccessKey and RefreshKey sign their respective token types. They
	// must be distinct so a refresh token can never pass as an access
	// token on signature alone.
	AccessKey  []byte
	RefreshKey []byte

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// MaxTokenAge bounds now-issuedAt independently of the expiry claim.
	// Zero disables the check.
	MaxTokenAge time.Duration

	// Leeway is applied to expiry validation to absorb clock drift.
	Leeway time.Duration

	// FingerprintEnabled binds each token to a fresh random fingerprint
	// that verifiers must present alongside the raw token.
	FingerprintEnabled bool

	// PositiveCacheTTL bounds how long verified claims may be served
	// without re-checking the signature. Zero disables the positive cache.
	PositiveCacheTTL time.Duration
}

func (c *Config) validate() error {
	if len(c.AccessKey) < MinKeyLen || len(c.RefreshKey) < MinKeyLen {
		return fmt.Errorf("%w: signing keys must be at least %d bytes", ErrConfig, MinKeyLen)
	}
	if string(c.AccessKey) == string(c.RefreshKey) {
		return fmt.Errorf("%w: access and refresh keys must differ", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	}
	if c.MaxTokenAge < 0 || c.Leeway < 0 || c.PositiveCacheTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrConfig)
	}
	return nil
}

// Service issues and verifies signed tokens. It is stateless apart from
// the injected cache and safe for concurrent use.
type Service struct {
	cfg   Config
	cache tokencache.Cache
	now   func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithTimeFunc overrides the clock. Used by tests to drive expiry.
func WithTimeFunc(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService validates cfg and builds a Service on top of cache.
func NewService(cfg Config, cache tokencache.Cache, opts ...Option) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: nil cache", ErrConfig)
	}
	s := &Service{cfg: cfg, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) keyFor(typ Type) []byte {
	if typ == TypeRefresh {
		return s.cfg.RefreshKey
	}
	return s.cfg.AccessKey
}

func (s *Service) ttlFor(typ Type) time.Duration {
	if typ == TypeRefresh {
		return s.cfg.RefreshTTL
	}
	return s.cfg.AccessTTL
}

// IssueAccess signs a new access token for id.
func (s *Service) IssueAccess(ctx context.Context, id Identity) (*IssuedToken, error) {
	fp, err := s.newFingerprint()
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, TypeAccess, id, fp)
}

// IssueRefresh signs a new refresh token for id.
func (s *Service) IssueRefresh(ctx context.Context, id Identity) (*IssuedToken, error) {
	fp, err := s.newFingerprint()
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, TypeRefresh, id, fp)
}

// IssuePair signs an access and a refresh token bound to one shared
// fingerprint, as handed out by a login.
func (s *Service) IssuePair(ctx context.Context, id Identity) (*TokenPair, error) {
	fp, err := s.newFingerprint()
	if err != nil {
		return nil, err
	}
	access, err := s.issue(ctx, TypeAccess, id, fp)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issue(ctx, TypeRefresh, id, fp)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: *access, Refresh: *refresh, Fingerprint: fp}, nil
}

func (s *Service) newFingerprint() (string, error) {
	if !s.cfg.FingerprintEnabled {
		return "", nil
	}
	return randomFingerprint()
}

func (s *Service) issue(ctx context.Context, typ Type, id Identity, fingerprint string) (*IssuedToken, error) {
	if id.SubjectID == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrConfig)
	}
	now := s.now()
	ttl := s.ttlFor(typ)

	claims := &Claims{
		Email:       id.Email,
		Role:        id.Role,
		TokenType:   typ,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.SubjectID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.keyFor(typ))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	// Never hand a token to a caller that has already gone away.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &IssuedToken{
		Token:       signed,
		TokenID:     claims.ID,
		Fingerprint: fingerprint,
		ExpiresIn:   int64(ttl / time.Second),
	}, nil
}

// Verify checks raw against expectedType and, when fingerprinting is on,
// the presented fingerprint. Checks run in a fixed order: structure,
// signature, type, fingerprint, age, revocation. A positive-cache hit may
// skip the signature parse but never the age and revocation checks.
func (s *Service) Verify(ctx context.Context, raw string, expectedType Type, fingerprint string) (*Claims, error) {
	if err := structurallyValid(raw); err != nil {
		return nil, err
	}

	claims, cached := s.cachedClaims(ctx, raw)
	if !cached {
		var err error
		claims, err = s.parse(raw, expectedType)
		if err != nil {
			return nil, err
		}
	}

	if claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	if s.cfg.FingerprintEnabled && claims.Fingerprint != "" {
		if !hmac.Equal([]byte(claims.Fingerprint), []byte(fingerprint)) {
			return nil, ErrFingerprintMismatch
		}
	}

	now := s.now()
	if cached && now.After(claims.ExpiresAt.Time.Add(s.cfg.Leeway)) {
		return nil, ErrTokenExpired
	}
	if s.cfg.MaxTokenAge > 0 && now.Sub(claims.IssuedAt.Time) > s.cfg.MaxTokenAge {
		return nil, ErrTokenTooOld
	}
	if s.isRevoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}

	if !cached {
		s.storeClaims(ctx, raw, claims, now)
	}
	return claims, nil
}

// Rotate verifies oldToken as a refresh token, issues a replacement pair
// with a fresh shared fingerprint, and revokes the old token's jti.
// Failure to revoke fails the whole rotation so the predecessor can
// never stay usable alongside its successor.
func (s *Service) Rotate(ctx context.Context, oldToken, fingerprint string) (*TokenPair, error) {
	claims, err := s.Verify(ctx, oldToken, TypeRefresh, fingerprint)
	if err != nil {
		return nil, err
	}

	pair, err := s.IssuePair(ctx, claims.Identity())
	if err != nil {
		return nil, err
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return pair, nil
}

// Revoke registers a token's jti on the negative list for the remainder of
// its lifetime. The raw token must still verify structurally and against
// its signature; an unverifiable token cannot be used and needs no marker.
func (s *Service) Revoke(ctx context.Context, raw string, typ Type) error {
	if err := structurallyValid(raw); err != nil {
		return err
	}
	claims, err := s.parse(raw, typ)
	if err != nil {
		return err
	}
	return s.revoke(ctx, claims)
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	ttl := claims.ExpiresAt.Time.Add(s.cfg.Leeway).Sub(s.now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if err := s.cache.Set(ctx, revokedKeyPrefix+claims.ID, []byte("1"), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationFailed, err)
	}
	return nil
}

func (s *Service) parse(raw string, expectedType Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.keyFor(expectedType), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.cfg.Leeway),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	if err := claims.wellFormed(); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// cachedClaims returns previously verified claims for raw, if any. Any
// cache failure, including timeouts, is treated as a miss so verification
// falls through to the signature check.
func (s *Service) cachedClaims(ctx context.Context, raw string) (*Claims, bool) {
	if s.cfg.PositiveCacheTTL <= 0 {
		return nil, false
	}
	data, err := s.cache.Get(ctx, positiveKey(raw))
	if err != nil {
		return nil, false
	}
	claims := &Claims{}
	if err := json.Unmarshal(data, claims); err != nil {
		return nil, false
	}
	if claims.wellFormed() != nil {
		return nil, false
	}
	return claims, true
}

// storeClaims records fully verified claims. TTL is capped at the token's
// remaining lifetime so a cached entry never outlives its token. Write
// failures are ignored; the cache is an optimization.
func (s *Service) storeClaims(ctx context.Context, raw string, claims *Claims, now time.Time) {
	if s.cfg.PositiveCacheTTL <= 0 {
		return
	}
	ttl := s.cfg.PositiveCacheTTL
	if remaining := claims.ExpiresAt.Time.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, positiveKey(raw), data, ttl)
}

func (s *Service) isRevoked(ctx context.Context, jti string) bool {
	_, err := s.cache.Get(ctx, revokedKeyPrefix+jti)
	return err == nil
}

func positiveKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return positiveKeyPrefix + hex.EncodeToString(sum[:])
}

// structurallyValid does the cheap shape check before any cache or crypto
// work: three non-empty dot-separated segments.
func structurallyValid(raw string) error {
	if raw == "" {
		return ErrMalformedToken
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ErrMalformedToken
	}
	for _, p := range parts {
		if p == "" {
			return ErrMalformedToken
		}
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	default:
		return ErrMalformedToken
	}
}

func randomFingerprint() (string, error) {
	buf := make([]byte, fingerprintBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate fingerprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
