package authcore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryAccountStore is an in-process AccountStore for tests and
// single-node deployments. Update is compare-and-swap on Version and
// ConsumeBackupCode is an atomic compare-and-delete, matching the
// contract a database-backed store must provide.
type MemoryAccountStore struct {
	mu       sync.Mutex
	byID     map[string]*UserAccount
	idByMail map[string]string
}

// NewMemoryAccountStore creates an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:     make(map[string]*UserAccount),
		idByMail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryAccountStore) GetByEmail(_ context.Context, email string) (*UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idByMail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, id string) (*UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return account.Clone(), nil
}

func (s *MemoryAccountStore) Create(_ context.Context, account *UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[account.ID]; exists {
		return ErrAccountExists
	}
	email := normalizeEmail(account.Email)
	if _, exists := s.idByMail[email]; exists {
		return ErrAccountExists
	}

	stored := account.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt

	s.byID[stored.ID] = stored
	s.idByMail[email] = stored.ID
	account.Version = stored.Version
	return nil
}

func (s *MemoryAccountStore) Update(_ context.Context, account *UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return ErrUserNotFound
	}
	if current.Version != account.Version {
		return ErrVersionConflict
	}

	stored := account.Clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	if old := normalizeEmail(current.Email); old != normalizeEmail(stored.Email) {
		delete(s.idByMail, old)
		s.idByMail[normalizeEmail(stored.Email)] = stored.ID
	}

	s.byID[stored.ID] = stored
	account.Version = stored.Version
	return nil
}

func (s *MemoryAccountStore) ConsumeBackupCode(_ context.Context, accountID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[accountID]
	if !ok {
		return false, ErrUserNotFound
	}

	for i, stored := range account.BackupCodeHashes {
		if stored == hash {
			account.BackupCodeHashes = append(
				account.BackupCodeHashes[:i],
				account.BackupCodeHashes[i+1:]...,
			)
			account.Version++
			account.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}
