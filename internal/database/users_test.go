package database

import (
	"context"
	"testing"
	"time"

	"cryptotracker/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userStore is the surface both backends share.
type userStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
}

func newUser(username, email string) *models.User {
	return &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func exerciseUserStore(t *testing.T, store userStore) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		u := newUser("alice", "Alice@Example.com")
		require.NoError(t, store.CreateUser(ctx, u))

		got, err := store.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
		assert.Nil(t, got.PasswordChangedAt)

		got, err = store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("duplicate username or email", func(t *testing.T) {
		err := store.CreateUser(ctx, newUser("alice", "other@example.com"))
		assert.ErrorIs(t, err, models.ErrAlreadyExists)

		err = store.CreateUser(ctx, newUser("alice2", "ALICE@example.com"))
		assert.ErrorIs(t, err, models.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := store.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update password", func(t *testing.T) {
		u, err := store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)

		changed := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, store.UpdatePassword(ctx, u.ID, "$2a$10$new", changed))

		got, err := store.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "$2a$10$new", got.PasswordHash)
		require.NotNil(t, got.PasswordChangedAt)
		assert.True(t, changed.Equal(*got.PasswordChangedAt))

		err = store.UpdatePassword(ctx, "missing-id", "x", changed)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPostgresUserStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	exerciseUserStore(t, NewPostgresUserStore(db))
}

func TestMongoUserStore(t *testing.T) {
	store, cleanup := setupTestMongo(t)
	defer cleanup()

	exerciseUserStore(t, store)
}
