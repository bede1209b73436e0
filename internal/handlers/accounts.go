package handlers

import (
	"errors"
	"net/http"
	"time"

	"cryptotracker/internal/accounts"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.uber.org/zap"
)

// AccountResponse is the envelope of the account endpoints.
type AccountResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *AccountUser `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
}

type AccountUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func accountUser(u *models.User) *AccountUser {
	return &AccountUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// writeAccountError reports account failures with the service's message.
// Anything unexpected is logged and answered with "Server error".
func writeAccountError(w http.ResponseWriter, traceID string, err error) {
	var accErr *accounts.Error
	if errors.As(err, &accErr) {
		writeJSON(w, statusFor(accErr.Kind), AccountResponse{Message: accErr.Message})
		return
	}
	if errors.Is(err, models.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, AccountResponse{Message: "Invalid request body"})
		return
	}
	logger.Log.Error("Account operation failed", zap.String("trace_id", traceID), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, AccountResponse{Message: "Server error"})
}

func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running!",
		"uptime":    time.Since(h.opts.Started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "RegisterHandler")
	defer span.End()

	var req accounts.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeAccountError(w, traceID, err)
		return
	}
	u, err := h.accounts.Register(ctx, req)
	if err != nil {
		writeAccountError(w, traceID, err)
		return
	}

	logger.Log.Info("User registered", zap.String("trace_id", traceID), zap.String("username", u.Username))
	writeJSON(w, http.StatusCreated, AccountResponse{
		Success: true,
		Message: "User registered successfully",
		User:    accountUser(u),
	})
}

// Login verifies the credentials and issues a session token that
// authenticates every per-user endpoint.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "LoginHandler")
	defer span.End()

	var req accounts.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeAccountError(w, traceID, err)
		return
	}
	u, err := h.accounts.Login(ctx, req)
	if err != nil {
		writeAccountError(w, traceID, err)
		return
	}
	_, token, err := h.sessions.Open(ctx, *u)
	if err != nil {
		writeAccountError(w, traceID, err)
		return
	}

	logger.Log.Info("User logged in", zap.String("trace_id", traceID), zap.String("username", u.Username))
	writeJSON(w, http.StatusOK, AccountResponse{
		Success: true,
		Message: "Login successful",
		User:    accountUser(u),
		Token:   token,
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "ChangePasswordHandler")
	defer span.End()

	var req accounts.ChangePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeAccountError(w, traceID, err)
		return
	}
	if err := h.accounts.ChangePassword(ctx, req); err != nil {
		writeAccountError(w, traceID, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Success: true, Message: "Password changed successfully"})
}

// Logout closes the caller's session. Unknown tokens still succeed.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		h.sessions.Close(token)
	}
	writeJSON(w, http.StatusOK, AccountResponse{Success: true, Message: "Logged out"})
}
