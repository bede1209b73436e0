package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptotracker/internal/cache"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://app.test"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/prices", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_BehindProxy(t *testing.T) {
	h := RateLimit(cache.NewMemoryRateLimiter(2, time.Minute), true)(okHandler())

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1").Code)
	assert.Equal(t, http.StatusOK, send("1.1.1.1").Code)
	rec := send("1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("2.2.2.2").Code)
}

func TestRateLimit_IgnoresForwardingHeadersByDefault(t *testing.T) {
	h := RateLimit(cache.NewMemoryRateLimiter(2, time.Minute), false)(okHandler())

	send := func(spoofed, remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1", "203.0.113.7:5000"))
	assert.Equal(t, http.StatusOK, send("2.2.2.2", "203.0.113.7:5001"))
	assert.Equal(t, http.StatusTooManyRequests, send("3.3.3.3", "203.0.113.7:5002"))

	assert.Equal(t, http.StatusOK, send("3.3.3.3", "198.51.100.1:5000"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	req.Header.Set("X-Forwarded-For", "1.1.1.1, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req, false))
	assert.Equal(t, "1.1.1.1", clientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", " 4.4.4.4 ")
	assert.Equal(t, "4.4.4.4", clientIP(req, true))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "203.0.113.7", clientIP(req, true))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))
	req.Header.Set("Authorization", "bearer abc ")
	assert.Equal(t, "abc", bearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))
}

func TestGenerateCacheKey_OrderIndependent(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/api/prices?ids=bitcoin&vs=usd", nil)
	b := httptest.NewRequest(http.MethodGet, "/api/prices?vs=usd&ids=bitcoin", nil)
	assert.Equal(t, generateCacheKey(a, "prices_"), generateCacheKey(b, "prices_"))
}
