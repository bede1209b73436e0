package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/events"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"
	"cryptotracker/internal/monitor"
	"cryptotracker/internal/notifications"
	"cryptotracker/internal/watchlist"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	Monitor       monitor.Config
	Notifications notifications.Options
	FeedSize      int
}

// Manager owns the open sessions. A user has at most one Session; every
// login adds an opaque token that resolves to it. The session is torn down
// when its last token is closed.
type Manager struct {
	kv        cache.Store
	rc        cache.ResponseCache
	fetcher   monitor.PriceFetcher
	publisher events.Publisher
	opts      Options

	// lifecycle serializes Open and Close so a user's session is never
	// built twice or reused after teardown.
	lifecycle sync.Mutex

	mu     sync.RWMutex
	users  map[string]*userEntry
	tokens map[string]string
}

type userEntry struct {
	session *Session
	tokens  map[string]struct{}
}

// NewManager wires sessions to shared infrastructure. A nil publisher
// disables event publishing.
func NewManager(kv cache.Store, rc cache.ResponseCache, fetcher monitor.PriceFetcher, pub events.Publisher, opts Options) *Manager {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Manager{
		kv:        kv,
		rc:        rc,
		fetcher:   fetcher,
		publisher: pub,
		opts:      opts,
		users:     make(map[string]*userEntry),
		tokens:    make(map[string]string),
	}
}

// Open issues a new token for user. The first login loads the user's state,
// purges expired notifications and starts monitoring when the watchlist has
// entries; later logins share that session.
func (m *Manager) Open(ctx context.Context, user models.User) (*Session, string, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	e, ok := m.users[user.Username]
	m.mu.RUnlock()
	if !ok {
		s, err := m.build(ctx, user)
		if err != nil {
			return nil, "", err
		}
		e = &userEntry{session: s, tokens: make(map[string]struct{})}
	}

	token := uuid.NewString()
	m.mu.Lock()
	e.tokens[token] = struct{}{}
	m.users[user.Username] = e
	m.tokens[token] = user.Username
	m.mu.Unlock()

	logger.Log.Info("Session opened",
		zap.String("username", user.Username),
		zap.Int("logins", len(e.tokens)),
		zap.Int("watchlist", e.session.Watchlist.Len()),
	)
	return e.session, token, nil
}

func (m *Manager) build(ctx context.Context, user models.User) (*Session, error) {
	wl, err := watchlist.Load(ctx, m.kv, user.Username)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", user.Username, err)
	}
	notes, err := notifications.Load(ctx, m.kv, user.Username, m.opts.Notifications)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", user.Username, err)
	}
	if _, err := notes.Cleanup(ctx); err != nil {
		logger.Log.Warn("Notification cleanup failed", zap.String("username", user.Username), zap.Error(err))
	}

	eval := monitor.New(m.opts.Monitor, user.Username, m.fetcher, wl, notes)
	eval.SetPublisher(m.publisher)

	s := &Session{
		User:          user,
		Watchlist:     wl,
		Notifications: notes,
		Feed:          notifications.NewRenderer(notes, m.rc, m.opts.FeedSize),
		Monitor:       eval,
		kv:            m.kv,
		now:           time.Now,
	}
	pub := m.publisher
	s.unsubscribe = append(s.unsubscribe, notes.Subscribe(func(ev notifications.Event) {
		if ev.Kind == notifications.EventAppended && ev.Notification != nil {
			pub.PublishNotification(context.Background(), ev.Username, *ev.Notification)
		}
	}))

	if wl.Len() > 0 {
		eval.Start()
	}
	return s, nil
}

// Get resolves a token to its user's session.
func (m *Manager) Get(token string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.users[m.tokens[token]]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Close revokes token. Unknown tokens report false. The session itself
// stops only when this was the user's last token.
func (m *Manager) Close(token string) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	username, ok := m.tokens[token]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.tokens, token)
	e := m.users[username]
	delete(e.tokens, token)
	last := len(e.tokens) == 0
	if last {
		delete(m.users, username)
	}
	m.mu.Unlock()

	if last {
		e.session.close()
		logger.Log.Info("Session closed", zap.String("username", username))
	}
	return true
}

func (m *Manager) CloseAll() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	all := m.users
	m.users = make(map[string]*userEntry)
	m.tokens = make(map[string]string)
	m.mu.Unlock()

	for _, e := range all {
		e.session.close()
	}
}

// Usernames lists users with an open session, sorted.
func (m *Manager) Usernames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.users))
	for username := range m.users {
		out = append(out, username)
	}
	sort.Strings(out)
	return out
}
