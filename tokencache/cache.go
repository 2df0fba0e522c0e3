// Package tokencache defines the keyed expiring store used by the token
// service and login flow: a positive cache of verified claims, a negative
// list of revoked token IDs, and pending MFA challenge state. The backing
// store is injected; a Redis implementation and an in-memory implementation
// ship with the package.
package tokencache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("tokencache: miss")

	// ErrUnavailable wraps backend failures (connection refused, timeout).
	// Readers treat it as a miss; writers on security-critical paths must
	// surface it.
	ErrUnavailable = errors.New("tokencache: backend unavailable")
)

// Cache is a keyed store with per-entry expiry. Implementations must be
// safe for concurrent use and must expire entries without caller-driven
// garbage collection. Delete reports whether the key existed, which the
// login flow relies on for one-shot challenge consumption.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Cache. It backs tests and single-node
// deployments; expired entries are dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory cache whose expiry checks use the
// supplied clock. Tests use it to simulate the passage of time.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Get returns the value for key or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, ErrMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes key and reports whether a live entry existed.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	delete(m.entries, key)
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}
