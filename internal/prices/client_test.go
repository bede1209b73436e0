package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptotracker/internal/cache"
	"cryptotracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGecko_FetchCurrentPrices(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin": {"usd": 50123.5, "usd_24h_change": -3.2},
			"ethereum": {"usd": 0, "usd_24h_change": 1.0}
		}`))
	}))
	defer server.Close()

	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewCoinGecko(WithBaseURL(server.URL))
	c.now = func() time.Time { return fixed }

	got, err := c.FetchCurrentPrices(context.Background(), []string{"bitcoin", "ethereum", "Bitcoin ", "dogecoin"})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ids=bitcoin%2Cdogecoin%2Cethereum")
	assert.Contains(t, gotQuery, "vs_currencies=usd")
	assert.Contains(t, gotQuery, "include_24hr_change=true")

	require.Len(t, got, 1)
	assert.Equal(t, models.PriceSnapshot{
		AssetID:    "bitcoin",
		Price:      50123.5,
		Change24h:  -3.2,
		ObservedAt: fixed,
	}, got["bitcoin"])
}

func TestCoinGecko_EmptyIDsSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer server.Close()

	c := NewCoinGecko(WithBaseURL(server.URL))
	got, err := c.FetchCurrentPrices(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCoinGecko_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, models.ErrRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, models.ErrNetwork},
		{"not found", http.StatusNotFound, `{}`, models.ErrNetwork},
		{"bad body", http.StatusOK, `not json`, models.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewCoinGecko(WithBaseURL(server.URL))
			_, err := c.FetchCurrentPrices(context.Background(), []string{"bitcoin"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCoinGecko_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewCoinGecko(WithBaseURL(url))
	_, err := c.FetchCurrentPrices(context.Background(), []string{"bitcoin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNetwork)
}

func TestCoinGecko_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := NewCoinGecko(WithBaseURL(server.URL), WithTimeout(50*time.Millisecond))
	_, err := c.FetchCurrentPrices(context.Background(), []string{"bitcoin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNetwork)
}

func TestCoinGecko_LimiterRefusal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"bitcoin":{"usd":1,"usd_24h_change":0}}`))
	}))
	defer server.Close()

	c := NewCoinGecko(WithBaseURL(server.URL), WithLimiter(cache.NewMemoryRateLimiter(1, time.Hour)))

	_, err := c.FetchCurrentPrices(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)

	_, err = c.FetchCurrentPrices(context.Background(), []string{"bitcoin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, 1, calls)
}

func TestCoinGecko_FetchHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"prices":[[1709251200000,61000.5],[1709337600000,62000.25]]}`))
	}))
	defer server.Close()

	c := NewCoinGecko(WithBaseURL(server.URL))
	h, err := c.FetchHistory(context.Background(), "bitcoin", models.Timeframe30d)
	require.NoError(t, err)

	assert.False(t, h.Synthetic)
	assert.Equal(t, models.Timeframe30d, h.Timeframe)
	require.Len(t, h.Points, 2)
	assert.Equal(t, time.UnixMilli(1709251200000).UTC(), h.Points[0].Timestamp)
	assert.Equal(t, 62000.25, h.Points[1].Price)
}

func TestCoinGecko_FetchHistoryEmptySeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	}))
	defer server.Close()

	c := NewCoinGecko(WithBaseURL(server.URL))
	_, err := c.FetchHistory(context.Background(), "bitcoin", models.Timeframe7d)
	assert.ErrorIs(t, err, models.ErrNetwork)

	_, err = c.FetchHistory(context.Background(), " ", models.Timeframe7d)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
