package authcore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskforge/authcore/tokencache"
)

// testClock is a settable clock shared by the engine, its token service,
// and the in-memory cache.
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

// stubValidator accepts exactly one code for one seed, making MFA flows
// deterministic without real TOTP windows.
type stubValidator struct {
	seed     string
	accepted string
}

func (v *stubValidator) Enroll(string) (string, string, error) {
	return v.seed, "otpauth://totp/authcore-test?secret=" + v.seed, nil
}

func (v *stubValidator) Validate(secret, code string, _ time.Time) bool {
	return secret == v.seed && code == v.accepted
}

func (v *stubValidator) Digits() int { return 6 }

// engineTestConfig keeps argon2 at the floor so tests stay fast.
func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = PasswordConfig{
		MemoryKB:    8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.Token.AccessKey = []byte(strings.Repeat("a", 32))
	cfg.Token.RefreshKey = []byte(strings.Repeat("r", 32))
	cfg.Encryption.Key = []byte(strings.Repeat("k", 32))
	return cfg
}

type engineFixture struct {
	engine    *Engine
	store     *MemoryAccountStore
	clock     *testClock
	validator *stubValidator
}

func newTestEngine(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := engineTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	store := NewMemoryAccountStore()
	validator := &stubValidator{seed: "JBSWY3DPEHPK3PXP", accepted: "123456"}

	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(store).
		WithCache(tokencache.NewMemoryWithClock(clock.Now)).
		WithMFAValidator(validator).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{
		engine:    engine,
		store:     store,
		clock:     clock,
		validator: validator,
	}
}

const testPassword = "correct horse battery"

func (f *engineFixture) register(t *testing.T, email string) string {
	t.Helper()
	id, err := f.engine.Register(context.Background(), email, testPassword, "member")
	if err != nil {
		t.Fatalf("Register(%q): %v", email, err)
	}
	return id
}

func (f *engineFixture) account(t *testing.T, id string) *UserAccount {
	t.Helper()
	account, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%q): %v", id, err)
	}
	return account
}
