package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

// UserStore is the account record store (Postgres or MongoDB).
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
}

// Error carries the user-facing message of a rejected account request.
type Error struct {
	Message string
	Kind    error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func invalid(msg string) error {
	return &Error{Message: msg, Kind: models.ErrInvalidInput}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type Service struct {
	users UserStore
	cost  int
	now   func() time.Time
}

// New returns a Service hashing with bcrypt at cost (bcrypt.DefaultCost when
// out of range).
func New(users UserStore, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, cost: cost, now: time.Now}
}

// Register validates and stores a new account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" || email == "" || req.Password == "" {
		return nil, invalid("All fields are required")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, invalid("Password must be at least 6 characters long")
	}
	if len(username) < MinUsernameLength {
		return nil, invalid("Username must be at least 3 characters long")
	}

	if exists, err := s.exists(ctx, username, email); err != nil {
		return nil, err
	} else if exists {
		return nil, &Error{Message: "User already exists", Kind: models.ErrAlreadyExists}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("accounts: hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return nil, &Error{Message: "User already exists", Kind: models.ErrAlreadyExists}
		}
		return nil, fmt.Errorf("accounts: register: %w", err)
	}

	logger.Log.Info("User registered", zap.String("username", u.Username))
	return u, nil
}

// Login checks the password of the account registered under email.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, invalid("Email and password are required")
	}

	u, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &Error{Message: "Invalid password", Kind: models.ErrInvalidCredentials}
	}

	logger.Log.Info("User logged in", zap.String("username", u.Username))
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.OldPassword == "" || req.NewPassword == "" {
		return invalid("Email, old password and new password are required")
	}
	if len(req.NewPassword) < MinPasswordLength {
		return invalid("New password must be at least 6 characters long")
	}
	if req.NewPassword == req.OldPassword {
		return invalid("New password must be different from old password")
	}

	u, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return &Error{Message: "Invalid old password", Kind: models.ErrInvalidCredentials}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("accounts: hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, string(hash), s.now().UTC()); err != nil {
		return fmt.Errorf("accounts: change password: %w", err)
	}

	logger.Log.Info("Password changed", zap.String("username", u.Username))
	return nil
}

func (s *Service) lookup(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &Error{Message: "User not found", Kind: models.ErrNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("accounts: lookup: %w", err)
	}
	return u, nil
}

// exists mirrors the "email or username" uniqueness check.
func (s *Service) exists(ctx context.Context, username, email string) (bool, error) {
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("accounts: register: %w", err)
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return true, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return false, fmt.Errorf("accounts: register: %w", err)
	}
	return false, nil
}
