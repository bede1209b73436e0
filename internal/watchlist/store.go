package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/models"
)

const keyKind = "watchlist"

// Store is one user's watchlist. Every mutation writes the full list to the
// state store before the in-memory copy changes, so a failed write leaves
// both sides untouched.
type Store struct {
	mu      sync.RWMutex
	kv      cache.Store
	key     string
	entries []models.WatchlistEntry
	now     func() time.Time
}

// Load reads the user's persisted watchlist. A missing key is an empty list.
func Load(ctx context.Context, kv cache.Store, username string) (*Store, error) {
	s := &Store{
		kv:  kv,
		key: cache.UserKey(keyKind, username),
		now: time.Now,
	}
	data, ok, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("watchlist: load: %w", err)
	}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("watchlist: decode %s: %w", s.key, err)
		}
	}
	return s, nil
}

// Add appends entry. The asset id is normalised to lower case; AddedAt and
// AlertDirection get defaults when unset.
func (s *Store) Add(ctx context.Context, entry models.WatchlistEntry) error {
	entry.AssetID = normalizeID(entry.AssetID)
	if entry.AssetID == "" {
		return fmt.Errorf("watchlist: add: %w: asset id is required", models.ErrInvalidInput)
	}
	dir, err := models.ParseAlertDirection(string(entry.AlertDirection))
	if err != nil {
		return fmt.Errorf("watchlist: add: %w", err)
	}
	entry.AlertDirection = dir
	if err := validateThreshold(entry.AlertThreshold); err != nil {
		return fmt.Errorf("watchlist: add: %w", err)
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = s.now().UTC()
	}
	entry.AlertThreshold = cloneFloat(entry.AlertThreshold)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(entry.AssetID) >= 0 {
		return fmt.Errorf("watchlist: add %s: %w", entry.AssetID, models.ErrDuplicateEntry)
	}

	next := make([]models.WatchlistEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	next = append(next, entry)
	return s.commit(ctx, next)
}

// Remove deletes the entry for assetID and reports whether one existed.
// Removing an absent asset is a no-op and writes nothing.
func (s *Store) Remove(ctx context.Context, assetID string) (bool, error) {
	assetID = normalizeID(assetID)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(assetID)
	if i < 0 {
		return false, nil
	}
	next := make([]models.WatchlistEntry, 0, len(s.entries)-1)
	next = append(next, s.entries[:i]...)
	next = append(next, s.entries[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAlert sets or, with a nil threshold, clears the entry's alert.
func (s *Store) UpdateAlert(ctx context.Context, assetID string, threshold *float64, direction models.AlertDirection) (models.WatchlistEntry, error) {
	assetID = normalizeID(assetID)
	dir, err := models.ParseAlertDirection(string(direction))
	if err != nil {
		return models.WatchlistEntry{}, fmt.Errorf("watchlist: update alert: %w", err)
	}
	if err := validateThreshold(threshold); err != nil {
		return models.WatchlistEntry{}, fmt.Errorf("watchlist: update alert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(assetID)
	if i < 0 {
		return models.WatchlistEntry{}, fmt.Errorf("watchlist: update alert %s: %w", assetID, models.ErrNotFound)
	}
	next := make([]models.WatchlistEntry, len(s.entries))
	copy(next, s.entries)
	next[i].AlertThreshold = cloneFloat(threshold)
	next[i].AlertDirection = dir
	if err := s.commit(ctx, next); err != nil {
		return models.WatchlistEntry{}, err
	}
	return cloneEntry(next[i]), nil
}

// List returns the entries in insertion order.
func (s *Store) List() []models.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WatchlistEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func (s *Store) Get(assetID string) (models.WatchlistEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(normalizeID(assetID))
	if i < 0 {
		return models.WatchlistEntry{}, false
	}
	return cloneEntry(s.entries[i]), true
}

func (s *Store) Contains(assetID string) bool {
	_, ok := s.Get(assetID)
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// commit persists next and swaps it in. Caller holds mu.
func (s *Store) commit(ctx context.Context, next []models.WatchlistEntry) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("watchlist: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("watchlist: persist: %w", err)
	}
	s.entries = next
	return nil
}

func (s *Store) indexOf(assetID string) int {
	for i := range s.entries {
		if s.entries[i].AssetID == assetID {
			return i
		}
	}
	return -1
}

func validateThreshold(t *float64) error {
	if t == nil {
		return nil
	}
	if math.IsNaN(*t) || math.IsInf(*t, 0) || *t <= 0 {
		return fmt.Errorf("%w: alert threshold must be a positive number", models.ErrInvalidInput)
	}
	return nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneEntry(e models.WatchlistEntry) models.WatchlistEntry {
	e.AlertThreshold = cloneFloat(e.AlertThreshold)
	return e
}
