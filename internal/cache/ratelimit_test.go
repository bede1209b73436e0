package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_Window(t *testing.T) {
	ctx := context.Background()
	rl := NewMemoryRateLimiter(2, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _, err := rl.Allow(ctx, "coingecko")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := rl.Allow(ctx, "coingecko")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	// keys are independent
	ok, _, err = rl.Allow(ctx, "api:127.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _, err = rl.Allow(ctx, "coingecko")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWait_ContextCancelled(t *testing.T) {
	rl := NewMemoryRateLimiter(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, Wait(ctx, rl, "k"))

	cancel()
	err := Wait(ctx, rl, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
