package notifications

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultFeedSize = 5

	feedEndpoint = "notifications_feed"
	// relative times go stale, so a feed is never served from cache for
	// longer than this even without store events.
	feedTTL = time.Minute
)

// Item is one rendered feed row.
type Item struct {
	ID        string                  `json:"id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	AssetID   *string                 `json:"asset_id"`
	Icon      string                  `json:"icon"`
	Color     string                  `json:"color"`
	TimeAgo   string                  `json:"time_ago"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// Feed is the notification dropdown: badge plus the newest items.
type Feed struct {
	UnreadCount int    `json:"unread_count"`
	Badge       string `json:"badge"`
	Items       []Item `json:"items"`
	Empty       bool   `json:"empty"`
}

var styles = map[models.NotificationType]struct{ icon, color string }{
	models.NotificationSuccess: {"bi-check-circle-fill", "#10b981"},
	models.NotificationWarning: {"bi-exclamation-triangle-fill", "#f59e0b"},
	models.NotificationError:   {"bi-exclamation-circle-fill", "#ef4444"},
	models.NotificationInfo:    {"bi-info-circle-fill", "#3b82f6"},
}

// Renderer turns a Store into a Feed and keeps the cached copy in step with
// the store through its subscription.
type Renderer struct {
	store       *Store
	cache       cache.ResponseCache
	size        int
	key         string
	prefix      string
	unsubscribe func()
	now         func() time.Time
}

// NewRenderer subscribes to store. Call Close to detach.
func NewRenderer(store *Store, rc cache.ResponseCache, size int) *Renderer {
	if size <= 0 {
		size = DefaultFeedSize
	}
	prefix := "feed:" + store.Username() + ":"
	r := &Renderer{
		store:  store,
		cache:  rc,
		size:   size,
		key:    prefix + strconv.Itoa(size),
		prefix: prefix,
		now:    time.Now,
	}
	r.unsubscribe = store.Subscribe(r.onEvent)
	return r
}

func (r *Renderer) Close() {
	r.unsubscribe()
}

// Feed returns the cached feed or renders a fresh one.
func (r *Renderer) Feed(ctx context.Context) (Feed, error) {
	if r.cache != nil {
		cached, err := r.cache.GetCache(ctx, r.key, feedEndpoint)
		if err != nil {
			logger.Log.Warn("Feed cache read failed", zap.String("key", r.key), zap.Error(err))
		} else if cached != "" {
			var f Feed
			if err := json.Unmarshal([]byte(cached), &f); err == nil {
				return f, nil
			}
		}
	}

	f := r.Render()
	if r.cache != nil {
		data, err := json.Marshal(f)
		if err == nil {
			if err := r.cache.SetCache(ctx, r.key, string(data), feedTTL, feedEndpoint); err != nil {
				logger.Log.Warn("Feed cache write failed", zap.String("key", r.key), zap.Error(err))
			}
		}
	}
	return f, nil
}

// Render builds the feed from the store without touching the cache.
func (r *Renderer) Render() Feed {
	now := r.now()
	recent := r.store.Recent(r.size)
	unread := r.store.UnreadCount()

	f := Feed{
		UnreadCount: unread,
		Items:       make([]Item, 0, len(recent)),
		Empty:       len(recent) == 0,
	}
	if unread > 0 {
		f.Badge = strconv.Itoa(unread)
	}
	for _, n := range recent {
		st, ok := styles[n.Type]
		if !ok {
			st = styles[models.NotificationInfo]
		}
		f.Items = append(f.Items, Item{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			AssetID:   n.AssetID,
			Icon:      st.icon,
			Color:     st.color,
			TimeAgo:   TimeAgo(n.CreatedAt, now),
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return f
}

func (r *Renderer) onEvent(ev Event) {
	if r.cache == nil {
		return
	}
	r.cache.InvalidateByPrefix(context.Background(), r.prefix, feedEndpoint)
}
