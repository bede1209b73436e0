package monitor

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"
	"cryptotracker/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Defaults for Config fields left at zero.
const (
	DefaultInterval      = 30 * time.Second
	DefaultFetchTimeout  = 10 * time.Second
	DefaultLargeMovePct  = 10.0
	DefaultDegradedAfter = 3
)

// PriceFetcher is the batch price source of a pass.
type PriceFetcher interface {
	FetchCurrentPrices(ctx context.Context, assetIDs []string) (map[string]models.PriceSnapshot, error)
}

// Watchlist supplies the assets to monitor.
type Watchlist interface {
	List() []models.WatchlistEntry
}

// NotificationSink receives the notifications a pass produces.
type NotificationSink interface {
	Append(ctx context.Context, n models.Notification) (models.Notification, error)
}

// SnapshotPublisher is told about every accepted batch of snapshots.
type SnapshotPublisher interface {
	PublishSnapshots(ctx context.Context, username string, snaps []models.PriceSnapshot)
}

type Config struct {
	Interval      time.Duration
	FetchTimeout  time.Duration
	LargeMovePct  float64
	DegradedAfter int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.LargeMovePct <= 0 {
		c.LargeMovePct = DefaultLargeMovePct
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = DefaultDegradedAfter
	}
	return c
}

// Status is a point-in-time view of the evaluator.
type Status struct {
	Active    bool          `json:"active"`
	InFlight  bool          `json:"in_flight"`
	Interval  time.Duration `json:"interval"`
	Tracked   int           `json:"tracked"`
	Degraded  []string      `json:"degraded"`
	Skipped   uint64        `json:"skipped"`
	LastPoll  time.Time     `json:"last_poll"`
	LastError string        `json:"last_error,omitempty"`
}

// Evaluator polls prices for a user's watchlist and turns threshold
// crossings and large 24h moves into notifications.
//
// An asset is Unseen until its first snapshot is stored and Tracking after.
// Nothing is evaluated on the Unseen -> Tracking poll. Threshold alerts are
// edge-triggered against the previous snapshot; large moves are
// level-triggered and fire on every pass while they hold.
type Evaluator struct {
	cfg       Config
	username  string
	fetcher   PriceFetcher
	watchlist Watchlist
	sink      NotificationSink
	publisher SnapshotPublisher

	inFlight atomic.Bool
	skipped  atomic.Uint64

	// mu guards everything below and is held while a finished pass applies
	// its results, so nothing is written after Stop returns.
	mu         sync.Mutex
	active     bool
	generation uint64
	cancel     context.CancelFunc
	snapshots  map[string]models.PriceSnapshot
	misses     map[string]int
	degraded   map[string]bool
	lastPoll   time.Time
	lastErr    error
}

func New(cfg Config, username string, fetcher PriceFetcher, wl Watchlist, sink NotificationSink) *Evaluator {
	return &Evaluator{
		cfg:       cfg.withDefaults(),
		username:  username,
		fetcher:   fetcher,
		watchlist: wl,
		sink:      sink,
		snapshots: make(map[string]models.PriceSnapshot),
		misses:    make(map[string]int),
		degraded:  make(map[string]bool),
	}
}

// SetPublisher attaches an optional snapshot publisher. Call before Start.
func (e *Evaluator) SetPublisher(p SnapshotPublisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publisher = p
}

// Start begins polling: one pass right away, then one per interval.
// Starting a running evaluator is a no-op.
func (e *Evaluator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return
	}
	e.active = true
	e.generation++
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.loop(ctx, e.generation)

	logger.Log.Info("Price monitoring started",
		zap.String("username", e.username),
		zap.Duration("interval", e.cfg.Interval),
	)
}

// Stop cancels the ticker and any in-flight fetch. A pass that completes
// afterwards is discarded. Stopping a stopped evaluator is a no-op.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.active = false
	e.generation++
	e.cancel()
	e.cancel = nil

	logger.Log.Info("Price monitoring stopped", zap.String("username", e.username))
}

func (e *Evaluator) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Poll runs one pass synchronously. It reports false when the evaluator is
// stopped, a pass is already in flight, or the result was discarded.
func (e *Evaluator) Poll(ctx context.Context) (bool, error) {
	e.mu.Lock()
	active, gen := e.active, e.generation
	e.mu.Unlock()
	if !active {
		return false, nil
	}
	return e.pass(ctx, gen)
}

// Snapshot returns the last stored snapshot for assetID.
func (e *Evaluator) Snapshot(assetID string) (models.PriceSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.snapshots[assetID]
	return s, ok
}

// Degraded lists assets with no live price for DegradedAfter passes.
func (e *Evaluator) Degraded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degradedLocked()
}

func (e *Evaluator) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Active:   e.active,
		InFlight: e.inFlight.Load(),
		Interval: e.cfg.Interval,
		Tracked:  len(e.snapshots),
		Degraded: e.degradedLocked(),
		Skipped:  e.skipped.Load(),
		LastPoll: e.lastPoll,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

func (e *Evaluator) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	go e.pass(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go e.pass(ctx, gen)
		}
	}
}

// pass fetches and evaluates once. Errors are logged and returned but never
// stop the loop.
func (e *Evaluator) pass(ctx context.Context, gen uint64) (bool, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.skipped.Add(1)
		passesTotal.WithLabelValues("skipped").Inc()
		logger.Log.Debug("Pass already in flight, skipping", zap.String("username", e.username))
		return false, nil
	}
	defer e.inFlight.Store(false)

	ctx, span := otel.Tracer(tracing.TracerName).Start(ctx, "monitor.pass")
	defer span.End()

	entries := e.watchlist.List()
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.AssetID)
	}
	span.SetAttributes(
		attribute.String("username", e.username),
		attribute.Int("assets", len(ids)),
	)

	var (
		snaps map[string]models.PriceSnapshot
		err   error
	)
	if len(ids) > 0 {
		fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		start := time.Now()
		snaps, err = e.fetcher.FetchCurrentPrices(fetchCtx, ids)
		fetchDuration.Observe(time.Since(start).Seconds())
		cancel()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || gen != e.generation {
		passesTotal.WithLabelValues("discarded").Inc()
		logger.Log.Debug("Discarding pass result after stop", zap.String("username", e.username))
		return false, nil
	}

	if err != nil {
		e.lastErr = err
		span.RecordError(err)
		passesTotal.WithLabelValues("error").Inc()
		logger.Log.Warn("Price fetch failed, retrying next tick",
			zap.String("username", e.username),
			zap.Int("assets", len(ids)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return false, err
	}

	notes := e.evaluateLocked(entries, snaps)
	e.lastPoll = time.Now()
	e.lastErr = nil
	passesTotal.WithLabelValues("ok").Inc()

	for _, n := range notes {
		if _, err := e.sink.Append(ctx, n); err != nil {
			logger.Log.Error("Failed to store notification",
				zap.String("username", e.username),
				zap.String("title", n.Title),
				zap.Error(err),
			)
		}
	}

	if e.publisher != nil && len(snaps) > 0 {
		batch := make([]models.PriceSnapshot, 0, len(snaps))
		for _, id := range ids {
			if s, ok := snaps[id]; ok {
				batch = append(batch, s)
			}
		}
		e.publisher.PublishSnapshots(ctx, e.username, batch)
	}
	return true, nil
}

// evaluateLocked applies one batch of snapshots and returns the
// notifications it produced. Caller holds mu.
func (e *Evaluator) evaluateLocked(entries []models.WatchlistEntry, snaps map[string]models.PriceSnapshot) []models.Notification {
	watched := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		watched[entry.AssetID] = struct{}{}
	}
	// removed assets go back to Unseen
	for id := range e.snapshots {
		if _, ok := watched[id]; !ok {
			delete(e.snapshots, id)
		}
	}
	for id := range e.misses {
		if _, ok := watched[id]; !ok {
			delete(e.misses, id)
			delete(e.degraded, id)
		}
	}

	var notes []models.Notification
	for _, entry := range entries {
		cur, ok := snaps[entry.AssetID]
		if !ok {
			e.misses[entry.AssetID]++
			if e.misses[entry.AssetID] >= e.cfg.DegradedAfter && !e.degraded[entry.AssetID] {
				e.degraded[entry.AssetID] = true
				alertsTotal.WithLabelValues("unavailable").Inc()
				notes = append(notes, unavailableNotification(entry, e.misses[entry.AssetID]))
			}
			continue
		}
		delete(e.misses, entry.AssetID)
		delete(e.degraded, entry.AssetID)

		prev, tracking := e.snapshots[entry.AssetID]
		e.snapshots[entry.AssetID] = cur
		if !tracking {
			continue
		}

		if entry.HasAlert() && crossed(entry.AlertDirection, prev.Price, cur.Price, *entry.AlertThreshold) {
			alertsTotal.WithLabelValues("threshold").Inc()
			notes = append(notes, thresholdNotification(entry, cur))
		}
		if math.Abs(cur.Change24h) >= e.cfg.LargeMovePct {
			alertsTotal.WithLabelValues("large_move").Inc()
			notes = append(notes, largeMoveNotification(entry, cur))
		}
	}
	return notes
}

// crossed reports an edge across threshold between two polls.
func crossed(dir models.AlertDirection, prev, cur, threshold float64) bool {
	if dir == models.AlertBelow {
		return prev > threshold && threshold >= cur
	}
	return prev < threshold && threshold <= cur
}

func (e *Evaluator) degradedLocked() []string {
	out := make([]string, 0, len(e.degraded))
	for id := range e.degraded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
