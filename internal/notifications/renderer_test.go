package notifications

import (
	"context"
	"testing"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_EmptyFeed(t *testing.T) {
	s, _ := newStore(t, Options{})
	r := NewRenderer(s, nil, 0)
	defer r.Close()

	f := r.Render()
	assert.True(t, f.Empty)
	assert.Zero(t, f.UnreadCount)
	assert.Empty(t, f.Badge)
	assert.Empty(t, f.Items)
}

func TestRender_ItemsAndStyles(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	types := []models.NotificationType{
		models.NotificationInfo,
		models.NotificationError,
		models.NotificationWarning,
		models.NotificationSuccess,
		models.NotificationInfo,
		models.NotificationInfo,
	}
	for _, typ := range types {
		_, err := s.Append(ctx, models.Notification{Type: typ, Title: string(typ)})
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkRead(ctx, s.Recent(1)[0].ID))

	r := NewRenderer(s, nil, DefaultFeedSize)
	defer r.Close()
	r.now = func() time.Time { return now.Add(2 * time.Hour) }

	f := r.Render()
	assert.False(t, f.Empty)
	assert.Equal(t, 5, f.UnreadCount)
	assert.Equal(t, "5", f.Badge)
	require.Len(t, f.Items, DefaultFeedSize)

	assert.True(t, f.Items[0].Read)
	assert.Equal(t, "bi-check-circle-fill", f.Items[2].Icon)
	assert.Equal(t, "#10b981", f.Items[2].Color)
	assert.Equal(t, "bi-exclamation-triangle-fill", f.Items[3].Icon)
	assert.Equal(t, "#f59e0b", f.Items[3].Color)
	assert.Equal(t, "bi-exclamation-circle-fill", f.Items[4].Icon)
	assert.Equal(t, "#ef4444", f.Items[4].Color)
	assert.Equal(t, "bi-info-circle-fill", f.Items[0].Icon)
	assert.Equal(t, "#3b82f6", f.Items[0].Color)
	assert.Equal(t, "2 hours ago", f.Items[0].TimeAgo)
}

func TestFeed_CachedAndInvalidatedOnEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{})
	rc := cache.NewMemory()
	r := NewRenderer(s, rc, DefaultFeedSize)
	defer r.Close()

	_, err := s.Append(ctx, models.Notification{Title: "first"})
	require.NoError(t, err)

	f, err := r.Feed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.UnreadCount)

	cached, err := rc.GetCache(ctx, "feed:alice:5", "notifications_feed")
	require.NoError(t, err)
	assert.NotEmpty(t, cached)

	_, err = s.Append(ctx, models.Notification{Title: "second"})
	require.NoError(t, err)

	cached, err = rc.GetCache(ctx, "feed:alice:5", "notifications_feed")
	require.NoError(t, err)
	assert.Empty(t, cached, "store event must invalidate the cached feed")

	f, err = r.Feed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.UnreadCount)
	assert.Equal(t, "second", f.Items[0].Title)
}

func TestRenderer_CloseStopsInvalidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{})
	rc := cache.NewMemory()
	r := NewRenderer(s, rc, DefaultFeedSize)

	_, err := r.Feed(ctx)
	require.NoError(t, err)
	r.Close()

	_, err = s.Append(ctx, models.Notification{Title: "after close"})
	require.NoError(t, err)

	cached, err := rc.GetCache(ctx, "feed:alice:5", "notifications_feed")
	require.NoError(t, err)
	assert.NotEmpty(t, cached)
}
