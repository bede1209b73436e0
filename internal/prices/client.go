package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	DefaultTimeout = 10 * time.Second

	limiterKey = "coingecko"
)

// Client is the market data source.
type Client interface {
	FetchCurrentPrices(ctx context.Context, assetIDs []string) (map[string]models.PriceSnapshot, error)
	FetchHistory(ctx context.Context, assetID string, tf models.Timeframe) (models.History, error)
}

var upstreamRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "market_requests_total",
		Help: "Requests to the market data API by endpoint and result",
	},
	[]string{"endpoint", "result"},
)

func init() {
	prometheus.MustRegister(upstreamRequests)
}

// CoinGecko talks to the CoinGecko v3 REST API.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter cache.RateLimiter
	now     func() time.Time
}

// Option configures CoinGecko.
type Option func(*CoinGecko)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *CoinGecko) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *CoinGecko) {
		c.timeout = d
	}
}

// WithLimiter throttles outbound requests. A refusal maps to ErrRateLimited.
func WithLimiter(l cache.RateLimiter) Option {
	return func(c *CoinGecko) {
		c.limiter = l
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CoinGecko) {
		c.client = hc
	}
}

func NewCoinGecko(opts ...Option) *CoinGecko {
	c := &CoinGecko{
		baseURL: DefaultBaseURL,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type simplePrice struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
}

// FetchCurrentPrices returns one snapshot per asset the API knows about.
// Unknown assets and zero prices are left out of the map.
func (c *CoinGecko) FetchCurrentPrices(ctx context.Context, assetIDs []string) (map[string]models.PriceSnapshot, error) {
	ids := uniqueIDs(assetIDs)
	if len(ids) == 0 {
		return map[string]models.PriceSnapshot{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	var body map[string]simplePrice
	if err := c.get(ctx, "simple_price", "/simple/price", q, &body); err != nil {
		return nil, err
	}

	observed := c.now()
	out := make(map[string]models.PriceSnapshot, len(body))
	for _, id := range ids {
		p, ok := body[id]
		if !ok || p.USD <= 0 {
			continue
		}
		out[id] = models.PriceSnapshot{
			AssetID:    id,
			Price:      p.USD,
			Change24h:  p.Change24h,
			ObservedAt: observed,
		}
	}
	return out, nil
}

type marketChart struct {
	Prices [][2]float64 `json:"prices"`
}

// FetchHistory returns the market_chart series for the timeframe.
func (c *CoinGecko) FetchHistory(ctx context.Context, assetID string, tf models.Timeframe) (models.History, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return models.History{}, fmt.Errorf("%w: empty asset id", models.ErrInvalidInput)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(tf.Days()))
	q.Set("interval", tf.Interval())

	var body marketChart
	if err := c.get(ctx, "market_chart", "/coins/"+url.PathEscape(assetID)+"/market_chart", q, &body); err != nil {
		return models.History{}, err
	}
	if len(body.Prices) == 0 {
		return models.History{}, fmt.Errorf("%w: empty price series for %s", models.ErrNetwork, assetID)
	}

	points := make([]models.PricePoint, 0, len(body.Prices))
	for _, p := range body.Prices {
		points = append(points, models.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Price:     p[1],
		})
	}
	return models.History{AssetID: assetID, Timeframe: tf, Points: points}, nil
}

func (c *CoinGecko) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	if c.limiter != nil {
		allowed, _, err := c.limiter.Allow(ctx, limiterKey)
		if err != nil {
			logger.Log.Warn("Outbound rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			upstreamRequests.WithLabelValues(endpoint, "throttled").Inc()
			return fmt.Errorf("prices: %s: %w", endpoint, models.ErrRateLimited)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("prices: %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		upstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("prices: %s: %w: %v", endpoint, models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		upstreamRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		return fmt.Errorf("prices: %s: %w", endpoint, models.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		upstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("prices: %s: %w: status %d", endpoint, models.ErrNetwork, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("prices: %s: %w: read body: %v", endpoint, models.ErrNetwork, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		upstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("prices: %s: %w: decode: %v", endpoint, models.ErrNetwork, err)
	}
	upstreamRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// uniqueIDs trims, drops blanks and duplicates, and sorts so identical sets
// produce identical requests.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

var _ Client = (*CoinGecko)(nil)
