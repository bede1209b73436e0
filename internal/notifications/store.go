package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default limits.
const (
	DefaultMaxItems  = 50
	DefaultRetention = 7 * 24 * time.Hour

	keyKind = "notifications"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventRead     EventKind = "read"
	EventRemoved  EventKind = "removed"
	EventCleared  EventKind = "cleared"
	EventPurged   EventKind = "purged"
)

// Event is delivered to subscribers after the store has been persisted.
type Event struct {
	Kind     EventKind
	Username string
	// Notification is set for EventAppended.
	Notification *models.Notification
	UnreadCount  int
}

type Options struct {
	MaxItems  int
	Retention time.Duration
}

// Store is one user's notification list, newest first.
type Store struct {
	mu        sync.Mutex
	kv        cache.Store
	username  string
	key       string
	items     []models.Notification
	maxItems  int
	retention time.Duration
	now       func() time.Time

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Load reads the persisted list. Zero options fall back to the defaults.
func Load(ctx context.Context, kv cache.Store, username string, opts Options) (*Store, error) {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	s := &Store{
		kv:        kv,
		username:  username,
		key:       cache.UserKey(keyKind, username),
		maxItems:  opts.MaxItems,
		retention: opts.Retention,
		now:       time.Now,
		subs:      make(map[int]func(Event)),
	}
	data, ok, err := kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("notifications: load: %w", err)
	}
	if ok && len(data) > 0 {
		if err := json.Unmarshal(data, &s.items); err != nil {
			return nil, fmt.Errorf("notifications: decode %s: %w", s.key, err)
		}
	}
	return s, nil
}

func (s *Store) Username() string {
	return s.username
}

// Subscribe registers fn for every persisted mutation. Callbacks run on the
// mutating goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
		})
	}
}

// Append stores n as the newest notification. The id, creation time and
// read flag are always assigned here.
func (s *Store) Append(ctx context.Context, n models.Notification) (models.Notification, error) {
	if strings.TrimSpace(n.Title) == "" {
		return models.Notification{}, fmt.Errorf("notifications: append: %w: title is required", models.ErrInvalidInput)
	}
	switch n.Type {
	case "":
		n.Type = models.NotificationInfo
	case models.NotificationSuccess, models.NotificationWarning, models.NotificationError, models.NotificationInfo:
	default:
		return models.Notification{}, fmt.Errorf("notifications: append: %w: unknown type %q", models.ErrInvalidInput, n.Type)
	}

	s.mu.Lock()
	n.ID = uuid.NewString()
	n.Read = false
	n.CreatedAt = s.now().UTC()
	if len(s.items) > 0 && n.CreatedAt.Before(s.items[0].CreatedAt) {
		n.CreatedAt = s.items[0].CreatedAt
	}

	size := min(len(s.items)+1, s.maxItems)
	next := make([]models.Notification, 0, size)
	next = append(next, n)
	next = append(next, s.items[:size-1]...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return models.Notification{}, err
	}
	unread := s.unreadLocked()
	s.mu.Unlock()

	created := n
	s.emit(Event{Kind: EventAppended, Username: s.username, Notification: &created, UnreadCount: unread})
	return n, nil
}

// MarkRead flags id as read. Unknown or already-read ids are ignored.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 || s.items[i].Read {
		s.mu.Unlock()
		return nil
	}
	next := s.cloneItems()
	next[i].Read = true
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	unread := s.unreadLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventRead, Username: s.username, UnreadCount: unread})
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	if s.unreadLocked() == 0 {
		s.mu.Unlock()
		return nil
	}
	next := s.cloneItems()
	for i := range next {
		next[i].Read = true
	}
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventRead, Username: s.username})
	return nil
}

// Remove deletes id, or returns ErrNotFound.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("notifications: remove %s: %w", id, models.ErrNotFound)
	}
	next := make([]models.Notification, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	unread := s.unreadLocked()
	s.mu.Unlock()

	s.emit(Event{Kind: EventRemoved, Username: s.username, UnreadCount: unread})
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.commit(ctx, []models.Notification{}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventCleared, Username: s.username})
	return nil
}

// Cleanup purges entries older than the retention window and returns how
// many were dropped.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.mu.Lock()
	cutoff := s.now().Add(-s.retention)
	next := make([]models.Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.CreatedAt.After(cutoff) {
			next = append(next, n)
		}
	}
	purged := len(s.items) - len(next)
	if purged == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	unread := s.unreadLocked()
	s.mu.Unlock()

	logger.Log.Debug("Purged old notifications",
		zap.String("username", s.username),
		zap.Int("purged", purged),
	)
	s.emit(Event{Kind: EventPurged, Username: s.username, UnreadCount: unread})
	return purged, nil
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

// Recent returns up to n notifications, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]models.Notification, n)
	for i := range out {
		out[i] = cloneNotification(s.items[i])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// commit persists next and swaps it in. Caller holds mu.
func (s *Store) commit(ctx context.Context, next []models.Notification) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("notifications: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("notifications: persist: %w", err)
	}
	s.items = next
	return nil
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) unreadLocked() int {
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) cloneItems() []models.Notification {
	out := make([]models.Notification, len(s.items))
	copy(out, s.items)
	return out
}

func cloneNotification(n models.Notification) models.Notification {
	if n.AssetID != nil {
		n.AssetID = models.StringPtr(*n.AssetID)
	}
	return n
}
