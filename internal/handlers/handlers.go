package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"cryptotracker/internal/accounts"
	"cryptotracker/internal/cache"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"
	"cryptotracker/internal/session"
	"cryptotracker/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Response is the envelope of every non-account endpoint.
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MarketData is the price source behind the market endpoints.
type MarketData interface {
	FetchCurrentPrices(ctx context.Context, assetIDs []string) (map[string]models.PriceSnapshot, error)
	FetchHistory(ctx context.Context, assetID string, tf models.Timeframe) (models.History, error)
}

type Options struct {
	PricesCacheTTL time.Duration
	Started        time.Time
}

// Handler serves the JSON API.
type Handler struct {
	accounts *accounts.Service
	sessions *session.Manager
	market   MarketData
	cache    cache.ResponseCache
	opts     Options
}

func New(acc *accounts.Service, sessions *session.Manager, market MarketData, rc cache.ResponseCache, opts Options) *Handler {
	if opts.PricesCacheTTL <= 0 {
		opts.PricesCacheTTL = 30 * time.Second
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	return &Handler{
		accounts: acc,
		sessions: sessions,
		market:   market,
		cache:    rc,
		opts:     opts,
	}
}

// Register mounts every API route on mux. Session-bound routes go through
// RequireSession.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/test", h.Test)
	mux.HandleFunc("POST /api/register", h.RegisterUser)
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("POST /api/change-password", h.ChangePassword)
	mux.HandleFunc("POST /api/logout", h.Logout)

	mux.HandleFunc("GET /api/prices", h.Prices)
	mux.HandleFunc("GET /api/assets/{id}/history", h.History)

	auth := h.RequireSession
	mux.Handle("GET /api/watchlist", auth(h.ListWatchlist))
	mux.Handle("POST /api/watchlist", auth(h.AddToWatchlist))
	mux.Handle("DELETE /api/watchlist/{id}", auth(h.RemoveFromWatchlist))
	mux.Handle("PUT /api/watchlist/{id}/alert", auth(h.UpdateAlert))

	mux.Handle("GET /api/notifications", auth(h.ListNotifications))
	mux.Handle("GET /api/notifications/feed", auth(h.NotificationFeed))
	mux.Handle("POST /api/notifications/read-all", auth(h.MarkAllRead))
	mux.Handle("POST /api/notifications/{id}/read", auth(h.MarkRead))
	mux.Handle("DELETE /api/notifications/{id}", auth(h.RemoveNotification))
	mux.Handle("DELETE /api/notifications", auth(h.ClearNotifications))

	mux.Handle("GET /api/monitor", auth(h.MonitorStatus))
	mux.Handle("POST /api/monitor/start", auth(h.StartMonitor))
	mux.Handle("POST /api/monitor/stop", auth(h.StopMonitor))
	mux.Handle("POST /api/monitor/poll", auth(h.PollMonitor))

	mux.Handle("GET /api/profile", auth(h.GetProfile))
	mux.Handle("PUT /api/profile", auth(h.SaveProfile))
	mux.Handle("GET /api/export", auth(h.Export))
}

func startSpan(r *http.Request, name string) (context.Context, trace.Span, string) {
	ctx, span := otel.Tracer(tracing.TracerName).Start(r.Context(), name)
	return ctx, span, span.SpanContext().TraceID().String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"message":"Failed to encode JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Message: msg})
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and reports it with its mapped status. Server-side
// failures get msg; everything else gets the error text so the user sees
// what went wrong.
func writeError(w http.ResponseWriter, traceID, msg string, err error) {
	status := statusFor(err)
	fields := []zap.Field{zap.String("trace_id", traceID), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		logger.Log.Error(msg, fields...)
	} else {
		logger.Log.Warn(msg, fields...)
	}

	text := msg
	if status < http.StatusInternalServerError || status == http.StatusBadGateway {
		text = err.Error()
	}
	writeMessage(w, status, text)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
	}
	return nil
}

func generateCacheKey(r *http.Request, prefix string) string {
	queryParams := r.URL.Query()
	var keys []string
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var queryString []string
	for _, k := range keys {
		queryString = append(queryString, fmt.Sprintf("%s=%s", k, strings.Join(queryParams[k], ",")))
	}
	joinedParams := strings.Join(queryString, "&")

	hash := sha256.Sum256([]byte(joinedParams))
	return prefix + hex.EncodeToString(hash[:8])
}
