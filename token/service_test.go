package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskforge/authcore/tokencache"
)

func testConfig() Config {
	return Config{
		AccessKey:          []byte(strings.Repeat("a", 32)),
		RefreshKey:         []byte(strings.Repeat("r", 32)),
		Issuer:             "authcore-test",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		MaxTokenAge:        24 * time.Hour,
		Leeway:             0,
		FingerprintEnabled: false,
		PositiveCacheTTL:   5 * time.Minute,
	}
}

// testClock is a settable clock shared between the service and its cache.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, cfg Config) (*Service, *testClock) {
	t.Helper()
	clock := newTestClock()
	cache := tokencache.NewMemoryWithClock(clock.Now)
	svc, err := NewService(cfg, cache, WithTimeFunc(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, clock
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cache := tokencache.NewMemory()

	cfg := testConfig()
	cfg.AccessKey = []byte("short")
	if _, err := NewService(cfg, cache); !errors.Is(err, ErrConfig) {
		t.Fatalf("short key: got %v, want ErrConfig", err)
	}

	cfg = testConfig()
	cfg.RefreshKey = cfg.AccessKey
	if _, err := NewService(cfg, cache); !errors.Is(err, ErrConfig) {
		t.Fatalf("identical keys: got %v, want ErrConfig", err)
	}

	cfg = testConfig()
	cfg.AccessTTL = 0
	if _, err := NewService(cfg, cache); !errors.Is(err, ErrConfig) {
		t.Fatalf("zero TTL: got %v, want ErrConfig", err)
	}

	if _, err := NewService(testConfig(), nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("nil cache: got %v, want ErrConfig", err)
	}
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1", Email: "u1@example.com", Role: "admin"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if issued.Token == "" || issued.TokenID == "" {
		t.Fatal("issued token missing token or id")
	}
	if issued.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("ExpiresIn = %d, want 900", issued.ExpiresIn)
	}

	claims, err := svc.Verify(ctx, issued.Token, TypeAccess, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id := claims.Identity(); id.SubjectID != "u1" || id.Email != "u1@example.com" || id.Role != "admin" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if claims.ID != issued.TokenID {
		t.Fatalf("jti mismatch: %q vs %q", claims.ID, issued.TokenID)
	}
}

func TestVerifyExpired(t *testing.T) {
	svc, clock := newTestService(t, testConfig())
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	clock.Advance(15*time.Minute + time.Second)
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyExpiredFromPositiveCache(t *testing.T) {
	// A long positive-cache TTL must not keep serving an expired token.
	cfg := testConfig()
	cfg.PositiveCacheTTL = time.Hour
	svc, clock := newTestService(t, cfg)
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); err != nil {
		t.Fatalf("priming Verify: %v", err)
	}

	clock.Advance(15*time.Minute + time.Second)
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyWrongType(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Fresh token against the wrong key fails on signature.
	if _, err := svc.Verify(ctx, issued.Token, TypeRefresh, ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("uncached wrong type: got %v, want ErrSignatureInvalid", err)
	}

	// A cached token skips the signature parse; the type check must still
	// reject it.
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); err != nil {
		t.Fatalf("priming Verify: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeRefresh, ""); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("cached wrong type: got %v, want ErrWrongTokenType", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	for _, raw := range []string{
		"",
		"just-a-string",
		"two.parts",
		"a..c",
		"a.b.c.d",
	} {
		if _, err := svc.Verify(ctx, raw, TypeAccess, ""); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q): got %v, want ErrMalformedToken", raw, err)
		}
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	i := strings.LastIndex(issued.Token, ".")
	tampered := issued.Token[:i+1] + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	if _, err := svc.Verify(ctx, tampered, TypeAccess, ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("got %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyFingerprint(t *testing.T) {
	cfg := testConfig()
	cfg.FingerprintEnabled = true
	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if issued.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}

	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, issued.Fingerprint); err != nil {
		t.Fatalf("matching fingerprint: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, "wrong"); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("got %v, want ErrFingerprintMismatch", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("missing fingerprint: got %v, want ErrFingerprintMismatch", err)
	}
}

func TestVerifyTooOld(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshTTL = 30 * 24 * time.Hour
	cfg.MaxTokenAge = 24 * time.Hour
	cfg.PositiveCacheTTL = 0
	svc, clock := newTestService(t, cfg)
	ctx := context.Background()

	issued, err := svc.IssueRefresh(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	clock.Advance(23 * time.Hour)
	if _, err := svc.Verify(ctx, issued.Token, TypeRefresh, ""); err != nil {
		t.Fatalf("within max age: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := svc.Verify(ctx, issued.Token, TypeRefresh, ""); !errors.Is(err, ErrTokenTooOld) {
		t.Fatalf("got %v, want ErrTokenTooOld", err)
	}
}

func TestRotateRevokesPredecessor(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	old, err := svc.IssueRefresh(ctx, Identity{SubjectID: "u1", Role: "member"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	rotated, err := svc.Rotate(ctx, old.Token, "")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.Refresh.TokenID == old.TokenID {
		t.Fatal("rotation reused the old token id")
	}

	if _, err := svc.Verify(ctx, old.Token, TypeRefresh, ""); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("old token: got %v, want ErrTokenRevoked", err)
	}
	claims, err := svc.Verify(ctx, rotated.Refresh.Token, TypeRefresh, "")
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "member" {
		t.Fatalf("rotated claims lost identity: %+v", claims)
	}
	if _, err := svc.Verify(ctx, rotated.Access.Token, TypeAccess, ""); err != nil {
		t.Fatalf("new access token: %v", err)
	}
}

func TestIssuePairSharesFingerprint(t *testing.T) {
	cfg := testConfig()
	cfg.FingerprintEnabled = true
	svc, _ := newTestService(t, cfg)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.Fingerprint == "" {
		t.Fatal("expected a fingerprint")
	}
	if pair.Access.Fingerprint != pair.Fingerprint || pair.Refresh.Fingerprint != pair.Fingerprint {
		t.Fatal("pair fingerprints differ")
	}

	if _, err := svc.Verify(ctx, pair.Access.Token, TypeAccess, pair.Fingerprint); err != nil {
		t.Fatalf("access with shared fingerprint: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.Refresh.Token, TypeRefresh, pair.Fingerprint); err != nil {
		t.Fatalf("refresh with shared fingerprint: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); err != nil {
		t.Fatalf("pre-revoke Verify: %v", err)
	}

	if err := svc.Revoke(ctx, issued.Token, TypeAccess); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("got %v, want ErrTokenRevoked", err)
	}
}

func TestIssueCancelledContext(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

// brokenCache fails every call, standing in for an unreachable backend.
type brokenCache struct {
	setErr error
}

func (b *brokenCache) Get(context.Context, string) ([]byte, error) {
	return nil, tokencache.ErrUnavailable
}

func (b *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	if b.setErr != nil {
		return b.setErr
	}
	return nil
}

func (b *brokenCache) Delete(context.Context, string) (bool, error) {
	return false, tokencache.ErrUnavailable
}

func TestVerifyFailsClosedOnCacheError(t *testing.T) {
	// Cache failures degrade to a miss: verification falls through to the
	// signature check instead of failing open or erroring out.
	svc, err := NewService(testConfig(), &brokenCache{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	issued, err := svc.IssueAccess(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := svc.Verify(ctx, issued.Token, TypeAccess, ""); err != nil {
		t.Fatalf("Verify with broken cache: %v", err)
	}
}

func TestRotateFailsWhenRevocationFails(t *testing.T) {
	svc, err := NewService(testConfig(), &brokenCache{setErr: tokencache.ErrUnavailable})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	old, err := svc.IssueRefresh(ctx, Identity{SubjectID: "u1"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := svc.Rotate(ctx, old.Token, ""); !errors.Is(err, ErrRevocationFailed) {
		t.Fatalf("got %v, want ErrRevocationFailed", err)
	}
	// The old token must remain usable; no successor was handed out.
	if _, err := svc.Verify(ctx, old.Token, TypeRefresh, ""); err != nil {
		t.Fatalf("old token after failed rotation: %v", err)
	}
}
