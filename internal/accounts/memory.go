package accounts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptotracker/internal/models"
)

// MemoryUserStore is a UserStore for tests and database-less development.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]models.User)}
}

func (m *MemoryUserStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("memory: create user %s: %w", u.Username, models.ErrAlreadyExists)
		}
	}
	stored := *u
	stored.Email = strings.ToLower(stored.Email)
	m.users[u.ID] = stored
	return nil
}

func (m *MemoryUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MemoryUserStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Username == username })
}

func (m *MemoryUserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("memory: update password %s: %w", id, models.ErrNotFound)
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	m.users[id] = u
	return nil
}

func (m *MemoryUserStore) find(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, fmt.Errorf("memory: find user: %w", models.ErrNotFound)
}

var _ UserStore = (*MemoryUserStore)(nil)
