package notifications

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*cache.MemoryStore
	fail bool
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("redis down")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func newStore(t *testing.T, opts Options) (*Store, *flakyStore) {
	t.Helper()
	kv := &flakyStore{MemoryStore: cache.NewMemory()}
	s, err := Load(context.Background(), kv, "alice", opts)
	require.NoError(t, err)
	return s, kv
}

func appendN(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Append(context.Background(), models.Notification{
			Type:  models.NotificationInfo,
			Title: fmt.Sprintf("n%d", i),
		})
		require.NoError(t, err)
	}
}

func TestAppend_AssignsFields(t *testing.T) {
	s, _ := newStore(t, Options{})

	n, err := s.Append(context.Background(), models.Notification{
		ID:    "caller-id",
		Title: "Added to Watchlist",
		Read:  true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "caller-id", n.ID)
	assert.Len(t, n.ID, 36)
	assert.False(t, n.Read)
	assert.Equal(t, models.NotificationInfo, n.Type)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestAppend_Validation(t *testing.T) {
	s, _ := newStore(t, Options{})

	_, err := s.Append(context.Background(), models.Notification{Title: " "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.Append(context.Background(), models.Notification{Title: "x", Type: "debug"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Zero(t, s.Len())
}

func TestUnreadCount(t *testing.T) {
	s, _ := newStore(t, Options{})
	appendN(t, s, 7)
	assert.Equal(t, 7, s.UnreadCount())

	require.NoError(t, s.MarkAllRead(context.Background()))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestAppend_CapEvictsOldest(t *testing.T) {
	s, _ := newStore(t, Options{})
	appendN(t, s, DefaultMaxItems+3)

	all := s.Recent(0)
	require.Len(t, all, DefaultMaxItems)
	assert.Equal(t, fmt.Sprintf("n%d", DefaultMaxItems+2), all[0].Title)
	assert.Equal(t, "n3", all[len(all)-1].Title)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "list must be newest first")
	}
}

func TestAppend_ClockStepBackKeepsOrder(t *testing.T) {
	s, _ := newStore(t, Options{})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	appendN(t, s, 1)

	now = now.Add(-time.Hour)
	appendN(t, s, 1)

	all := s.Recent(0)
	assert.Equal(t, all[1].CreatedAt, all[0].CreatedAt)
	assert.Equal(t, "n0", all[0].Title)
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{})
	appendN(t, s, 2)
	first := s.Recent(1)[0]

	require.NoError(t, s.MarkRead(ctx, first.ID))
	assert.Equal(t, 1, s.UnreadCount())

	// unknown id is a no-op
	require.NoError(t, s.MarkRead(ctx, "missing"))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{})
	appendN(t, s, 3)
	id := s.Recent(1)[0].ID

	require.NoError(t, s.Remove(ctx, id))
	assert.Equal(t, 2, s.Len())

	err := s.Remove(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Recent(5))
}

func TestCleanup_PurgesExpired(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, Options{Retention: 24 * time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	appendN(t, s, 2)

	now = now.Add(12 * time.Hour)
	appendN(t, s, 1)

	now = now.Add(13 * time.Hour)
	purged, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "n0", s.Recent(1)[0].Title)

	purged, err = s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t, Options{})
	appendN(t, s, 3)
	require.NoError(t, s.MarkRead(ctx, s.Recent(1)[0].ID))

	reloaded, err := Load(ctx, kv, "alice", Options{})
	require.NoError(t, err)
	assert.Equal(t, s.Recent(0), reloaded.Recent(0))
	assert.Equal(t, 2, reloaded.UnreadCount())
}

func TestFailedWrite_NoStateChangeNoEvent(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t, Options{})
	appendN(t, s, 1)

	events := 0
	s.Subscribe(func(Event) { events++ })

	kv.fail = true
	_, err := s.Append(ctx, models.Notification{Title: "x"})
	require.Error(t, err)
	require.Error(t, s.MarkAllRead(ctx))
	require.Error(t, s.Clear(ctx))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())
	assert.Zero(t, events)
}

func TestSubscribe_SeesPersistedState(t *testing.T) {
	ctx := context.Background()
	s, kv := newStore(t, Options{})

	var got []Event
	unsubscribe := s.Subscribe(func(ev Event) {
		// the store must be persisted and unlocked by now
		assert.Equal(t, ev.UnreadCount, s.UnreadCount())
		raw, ok, err := kv.Get(ctx, "notifications_alice")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, raw)
		got = append(got, ev)
	})

	n, err := s.Append(ctx, models.Notification{Title: "Price Alert Triggered", AssetID: models.StringPtr("bitcoin")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, EventAppended, got[0].Kind)
	assert.Equal(t, "alice", got[0].Username)
	require.NotNil(t, got[0].Notification)
	assert.Equal(t, n.ID, got[0].Notification.ID)

	unsubscribe()
	unsubscribe()
	appendN(t, s, 1)
	assert.Len(t, got, 1)
}
