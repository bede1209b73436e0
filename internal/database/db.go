package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// OpenPostgres opens a pooled connection and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	logger.Log.Info("Database connection established")
	return db, nil
}

// PostgresUserStore keeps accounts in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// uniqueViolation is the SQLSTATE for a unique constraint clash.
const uniqueViolation = "23505"

// CreateUser inserts u. A clash on username or email is ErrAlreadyExists.
func (s *PostgresUserStore) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID,
		u.Username,
		strings.ToLower(u.Email),
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("database: create user %s: %w", u.Username, models.ErrAlreadyExists)
		}
		logger.Log.Error("Failed to create user in database",
			zap.String("username", u.Username),
			zap.Error(err),
		)
		return fmt.Errorf("database: create user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", strings.ToLower(email))
}

func (s *PostgresUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

// getUser looks a user up by a fixed column name.
func (s *PostgresUserStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, password_changed_at
		FROM users
		WHERE ` + column + ` = $1
	`

	var u models.User
	var changedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&changedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("database: user %s=%s: %w", column, value, models.ErrNotFound)
		}
		logger.Log.Error("Failed to retrieve user",
			zap.String(column, value),
			zap.Error(err),
		)
		return nil, fmt.Errorf("database: get user: %w", err)
	}

	// Convert nullable fields
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	return &u, nil
}

// UpdatePassword replaces the hash of user id.
func (s *PostgresUserStore) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $1, password_changed_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, hash, changedAt, id)
	if err != nil {
		logger.Log.Error("Failed to update password",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return fmt.Errorf("database: update password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("database: update password: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("database: update password %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresUserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
