package prices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDegradeAfter = 3
	DefaultDegradedFor  = 5 * time.Minute
	DefaultFetchTimeout = 15 * time.Second
)

// Fallback wraps a Client so history requests always produce a series.
// An asset whose history fetch fails on the network DegradeAfter times in a
// row is served synthetic data for DegradedFor before the network is tried
// again. Current prices pass straight through.
type Fallback struct {
	next         Client
	group        singleflight.Group
	now          func() time.Time
	degradeAfter int
	degradedFor  time.Duration
	fetchTimeout time.Duration

	mu       sync.RWMutex
	failures map[string]int
	degraded map[string]time.Time
}

type FallbackOption func(*Fallback)

// WithDegradeAfter sets how many consecutive network failures degrade an
// asset.
func WithDegradeAfter(n int) FallbackOption {
	return func(f *Fallback) {
		if n > 0 {
			f.degradeAfter = n
		}
	}
}

// WithDegradedFor sets how long a degraded asset stays off the network.
func WithDegradedFor(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.degradedFor = d
		}
	}
}

// WithFetchTimeout bounds the shared upstream call.
func WithFetchTimeout(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.fetchTimeout = d
		}
	}
}

func NewFallback(next Client, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		next:         next,
		now:          time.Now,
		degradeAfter: DefaultDegradeAfter,
		degradedFor:  DefaultDegradedFor,
		fetchTimeout: DefaultFetchTimeout,
		failures:     make(map[string]int),
		degraded:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) FetchCurrentPrices(ctx context.Context, assetIDs []string) (map[string]models.PriceSnapshot, error) {
	return f.next.FetchCurrentPrices(ctx, assetIDs)
}

// FetchHistory collapses concurrent requests for the same asset and
// timeframe into one upstream call. The shared call is detached from any
// single caller, so a caller that goes away neither fails the others nor
// counts against the asset.
func (f *Fallback) FetchHistory(ctx context.Context, assetID string, tf models.Timeframe) (models.History, error) {
	if err := ctx.Err(); err != nil {
		return models.History{}, fmt.Errorf("prices: history %s: %w", assetID, err)
	}
	if f.IsDegraded(assetID) {
		return Synthetic(assetID, tf, f.now()), nil
	}

	ch := f.group.DoChan(assetID+"|"+string(tf), func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.fetchTimeout)
		defer cancel()
		h, err := f.next.FetchHistory(callCtx, assetID, tf)
		switch {
		case err == nil:
			f.recordSuccess(assetID)
		case errors.Is(err, models.ErrNetwork):
			f.recordFailure(assetID, err)
		}
		return h, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return models.History{}, fmt.Errorf("prices: history %s: %w", assetID, ctx.Err())
	case res = <-ch:
	}

	if res.Err == nil {
		return res.Val.(models.History), nil
	}

	err := res.Err
	switch {
	case errors.Is(err, models.ErrRateLimited):
		logger.Log.Info("Market data rate limited, serving synthetic history",
			zap.String("asset_id", assetID),
			zap.String("timeframe", string(tf)),
		)
	case errors.Is(err, models.ErrNetwork):
		logger.Log.Warn("History fetch failed, serving synthetic history",
			zap.String("asset_id", assetID),
			zap.String("timeframe", string(tf)),
			zap.Error(err),
		)
	default:
		return models.History{}, err
	}
	return Synthetic(assetID, tf, f.now()), nil
}

func (f *Fallback) IsDegraded(assetID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	until, ok := f.degraded[assetID]
	return ok && f.now().Before(until)
}

// Degraded lists currently degraded assets, sorted.
func (f *Fallback) Degraded() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	now := f.now()
	out := make([]string, 0, len(f.degraded))
	for id, until := range f.degraded {
		if now.Before(until) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ResetDegraded lets the asset try the network again.
func (f *Fallback) ResetDegraded(assetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.degraded, assetID)
	delete(f.failures, assetID)
}

func (f *Fallback) recordSuccess(assetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, assetID)
	delete(f.degraded, assetID)
}

func (f *Fallback) recordFailure(assetID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[assetID]++
	if f.failures[assetID] < f.degradeAfter {
		return
	}
	f.failures[assetID] = 0
	f.degraded[assetID] = f.now().Add(f.degradedFor)
	logger.Log.Warn("Asset switched to synthetic history",
		zap.String("asset_id", assetID),
		zap.Duration("for", f.degradedFor),
		zap.Error(err),
	)
}

var _ Client = (*Fallback)(nil)
