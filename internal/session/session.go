package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"
	"cryptotracker/internal/monitor"
	"cryptotracker/internal/notifications"
	"cryptotracker/internal/watchlist"

	"go.uber.org/zap"
)

const profileKind = "profile"

// Session is the per-user context: stores, feed renderer and evaluator.
// It lives from the user's first login until their last logout.
type Session struct {
	User          models.User
	Watchlist     *watchlist.Store
	Notifications *notifications.Store
	Feed          *notifications.Renderer
	Monitor       *monitor.Evaluator

	kv          cache.Store
	unsubscribe []func()
	now         func() time.Time
}

func (s *Session) Username() string {
	return s.User.Username
}

// AddToWatchlist adds entry, announces it and makes sure monitoring runs.
func (s *Session) AddToWatchlist(ctx context.Context, entry models.WatchlistEntry) (models.WatchlistEntry, error) {
	if err := s.Watchlist.Add(ctx, entry); err != nil {
		return models.WatchlistEntry{}, err
	}
	added, _ := s.Watchlist.Get(entry.AssetID)

	msg := fmt.Sprintf("%s has been added to your watchlist", added.DisplayName())
	if added.HasAlert() {
		msg += fmt.Sprintf(" with price alert at $%s", notifications.FormatPrice(*added.AlertThreshold))
	}
	s.announce(ctx, models.Notification{
		Type:    models.NotificationSuccess,
		Title:   "Added to Watchlist",
		Message: msg + ".",
		AssetID: models.StringPtr(added.AssetID),
	})

	if !s.Monitor.Active() {
		s.Monitor.Start()
	}
	return added, nil
}

// RemoveFromWatchlist removes assetID. Monitoring stops once the list is empty.
func (s *Session) RemoveFromWatchlist(ctx context.Context, assetID string) (bool, error) {
	entry, found := s.Watchlist.Get(assetID)
	removed, err := s.Watchlist.Remove(ctx, assetID)
	if err != nil || !removed || !found {
		return removed, err
	}

	s.announce(ctx, models.Notification{
		Type:    models.NotificationInfo,
		Title:   "Removed from Watchlist",
		Message: fmt.Sprintf("%s has been removed from your watchlist.", entry.DisplayName()),
		AssetID: models.StringPtr(entry.AssetID),
	})

	if s.Watchlist.Len() == 0 {
		s.Monitor.Stop()
	}
	return true, nil
}

// UpdateAlert sets or clears the alert on assetID.
func (s *Session) UpdateAlert(ctx context.Context, assetID string, threshold *float64, direction models.AlertDirection) (models.WatchlistEntry, error) {
	entry, err := s.Watchlist.UpdateAlert(ctx, assetID, threshold, direction)
	if err != nil {
		return models.WatchlistEntry{}, err
	}

	msg := fmt.Sprintf("Price alert for %s has been removed.", entry.DisplayName())
	if entry.HasAlert() {
		msg = fmt.Sprintf("Price alert for %s has been set to $%s (%s current price).",
			entry.DisplayName(), notifications.FormatPrice(*entry.AlertThreshold), entry.AlertDirection)
	}
	s.announce(ctx, models.Notification{
		Type:    models.NotificationInfo,
		Title:   "Price Alert Updated",
		Message: msg,
		AssetID: models.StringPtr(entry.AssetID),
	})
	return entry, nil
}

// StartMonitoring starts the evaluator and reports whether it was stopped.
func (s *Session) StartMonitoring(ctx context.Context) bool {
	if s.Monitor.Active() {
		return false
	}
	s.Monitor.Start()
	s.announce(ctx, models.Notification{
		Type:    models.NotificationInfo,
		Title:   "Price Monitoring Started",
		Message: "Real-time price monitoring is now active for your watchlist.",
	})
	return true
}

// StopMonitoring stops the evaluator and reports whether it was running.
func (s *Session) StopMonitoring() bool {
	if !s.Monitor.Active() {
		return false
	}
	s.Monitor.Stop()
	return true
}

// Profile returns the saved profile, or one seeded from the account.
func (s *Session) Profile(ctx context.Context) (models.Profile, error) {
	data, ok, err := s.kv.Get(ctx, cache.UserKey(profileKind, s.Username()))
	if err != nil {
		return models.Profile{}, fmt.Errorf("session: load profile: %w", err)
	}
	if !ok {
		return models.Profile{Email: s.User.Email, EmailNotifications: true}, nil
	}
	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Profile{}, fmt.Errorf("session: decode profile: %w", err)
	}
	return p, nil
}

func (s *Session) SaveProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	p.Email = strings.TrimSpace(p.Email)
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return models.Profile{}, fmt.Errorf("session: save profile: %w: invalid email", models.ErrInvalidInput)
	}
	p.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(p)
	if err != nil {
		return models.Profile{}, fmt.Errorf("session: encode profile: %w", err)
	}
	if err := s.kv.Set(ctx, cache.UserKey(profileKind, s.Username()), data); err != nil {
		return models.Profile{}, fmt.Errorf("session: save profile: %w", err)
	}
	return p, nil
}

// Export gathers everything stored for the user.
func (s *Session) Export(ctx context.Context) (models.UserExport, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		return models.UserExport{}, err
	}
	return models.UserExport{
		Username:      s.Username(),
		Profile:       p,
		Watchlist:     s.Watchlist.List(),
		Notifications: s.Notifications.Recent(0),
		ExportDate:    s.now().UTC(),
	}, nil
}

// announce appends a side-effect notification. Failures are logged; the
// action that triggered it already succeeded.
func (s *Session) announce(ctx context.Context, n models.Notification) {
	if _, err := s.Notifications.Append(ctx, n); err != nil {
		logger.Log.Warn("Failed to store notification",
			zap.String("username", s.Username()),
			zap.String("title", n.Title),
			zap.Error(err),
		)
	}
}

func (s *Session) close() {
	s.Monitor.Stop()
	s.Feed.Close()
	for _, fn := range s.unsubscribe {
		fn()
	}
}
