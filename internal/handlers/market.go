package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const pricesEndpoint = "/api/prices"

// Prices returns current prices for ?ids=a,b. Responses are cached briefly
// by normalised query.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "PricesHandler")
	defer span.End()

	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		writeError(w, traceID, "Invalid prices request", fmt.Errorf("%w: ids query parameter is required", models.ErrInvalidInput))
		return
	}
	span.SetAttributes(attribute.Int("assets", len(ids)))

	cacheKey := generateCacheKey(r, "prices_")
	if h.cache != nil {
		cached, err := h.cache.GetCache(ctx, cacheKey, pricesEndpoint)
		if err == nil && cached != "" {
			logger.Log.Debug("Cache hit for /api/prices",
				zap.String("trace_id", traceID),
				zap.String("cache_key", cacheKey),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(cached))
			return
		}
	}

	snaps, err := h.market.FetchCurrentPrices(ctx, ids)
	if err != nil {
		span.RecordError(err)
		writeError(w, traceID, "Failed to fetch prices", err)
		return
	}

	respBytes, err := json.Marshal(Response{Message: "Prices retrieved successfully", Data: snaps})
	if err != nil {
		writeError(w, traceID, "Failed to encode JSON response", err)
		return
	}
	if h.cache != nil {
		if cacheErr := h.cache.SetCache(ctx, cacheKey, string(respBytes), h.opts.PricesCacheTTL, pricesEndpoint); cacheErr != nil {
			logger.Log.Warn("Failed to store response in cache",
				zap.String("trace_id", traceID),
				zap.String("cache_key", cacheKey),
				zap.Error(cacheErr),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// History returns the chart series for an asset. When the market is
// unreachable the series is synthetic and flagged as such.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "HistoryHandler")
	defer span.End()

	assetID := r.PathValue("id")
	tf, err := models.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, traceID, "Invalid history request", err)
		return
	}
	span.SetAttributes(attribute.String("asset_id", assetID), attribute.String("timeframe", string(tf)))

	hist, err := h.market.FetchHistory(ctx, assetID, tf)
	if err != nil {
		span.RecordError(err)
		writeError(w, traceID, "Failed to fetch price history", err)
		return
	}

	msg := "History retrieved successfully"
	if hist.Synthetic {
		msg = "Live data unavailable, showing simulated history"
	}
	writeJSON(w, http.StatusOK, Response{Message: msg, Data: hist})
}

func splitIDs(raw string) []string {
	var ids []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
