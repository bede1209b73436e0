package models

import (
	"fmt"
	"strings"
	"time"
)

// AlertDirection says which way a price has to cross the threshold.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// ParseAlertDirection accepts "above"/"below" (case-insensitive). An empty
// value defaults to above.
func ParseAlertDirection(s string) (AlertDirection, error) {
	switch AlertDirection(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlertAbove:
		return AlertAbove, nil
	case AlertBelow:
		return AlertBelow, nil
	default:
		return "", fmt.Errorf("%w: alert direction must be above or below, got %q", ErrInvalidInput, s)
	}
}

// WatchlistEntry is a tracked asset in a user's watchlist
type WatchlistEntry struct {
	AssetID        string         `json:"asset_id"`
	Name           string         `json:"name"`
	Symbol         string         `json:"symbol"`
	ImageURL       string         `json:"image_url,omitempty"`
	AddedPrice     float64        `json:"added_price"`
	AddedAt        time.Time      `json:"added_at"`
	AlertThreshold *float64       `json:"alert_threshold,omitempty"`
	AlertDirection AlertDirection `json:"alert_direction"`
}

// HasAlert reports whether the entry carries a price alert.
func (e WatchlistEntry) HasAlert() bool {
	return e.AlertThreshold != nil
}

// DisplayName renders "Bitcoin (BTC)".
func (e WatchlistEntry) DisplayName() string {
	name := e.Name
	if name == "" {
		name = e.AssetID
	}
	if e.Symbol == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.ToUpper(e.Symbol))
}

// PriceSnapshot is the last observed price of an asset.
type PriceSnapshot struct {
	AssetID    string    `json:"asset_id"`
	Price      float64   `json:"price"`
	Change24h  float64   `json:"change_24h"`
	ObservedAt time.Time `json:"observed_at"`
}

// NotificationType drives how a notification is rendered
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// Notification is an entry in a user's notification feed.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	AssetID   *string          `json:"asset_id"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

// PricePoint is one sample of a historical price series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// History is a price series for one asset. Synthetic marks generated data that
// must never be mistaken for market data.
type History struct {
	AssetID   string       `json:"asset_id"`
	Timeframe Timeframe    `json:"timeframe"`
	Points    []PricePoint `json:"points"`
	Synthetic bool         `json:"synthetic"`
}

// User is an account record. The password hash never leaves the server.
type User struct {
	ID                string     `json:"id" db:"id" bson:"_id"`
	Username          string     `json:"username" db:"username" bson:"username"`
	Email             string     `json:"email" db:"email" bson:"email"`
	PasswordHash      string     `json:"-" db:"password_hash" bson:"password_hash"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at" bson:"created_at"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty" db:"password_changed_at" bson:"password_changed_at,omitempty"`
}

// Profile holds the user-editable profile fields.
type Profile struct {
	Email              string    `json:"email"`
	Bio                string    `json:"bio"`
	EmailNotifications bool      `json:"email_notifications"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// UserExport is the downloadable dump of everything stored for a user.
type UserExport struct {
	Username      string           `json:"username"`
	Profile       Profile          `json:"profile"`
	Watchlist     []WatchlistEntry `json:"watchlist"`
	Notifications []Notification   `json:"notifications"`
	ExportDate    time.Time        `json:"export_date"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}
