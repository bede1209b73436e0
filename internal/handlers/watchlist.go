package handlers

import (
	"fmt"
	"net/http"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type AddWatchlistRequest struct {
	AssetID        string   `json:"asset_id"`
	Name           string   `json:"name"`
	Symbol         string   `json:"symbol"`
	ImageURL       string   `json:"image_url"`
	AddedPrice     float64  `json:"added_price"`
	AlertThreshold *float64 `json:"alert_threshold"`
	AlertDirection string   `json:"alert_direction"`
}

// UpdateAlertRequest sets the alert; a null threshold clears it.
type UpdateAlertRequest struct {
	Threshold *float64 `json:"threshold"`
	Direction string   `json:"direction"`
}

func (h *Handler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	writeJSON(w, http.StatusOK, Response{
		Message: "Watchlist retrieved successfully",
		Data:    s.Watchlist.List(),
	})
}

func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "AddToWatchlistHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	var req AddWatchlistRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, traceID, "Invalid request body", err)
		return
	}
	span.SetAttributes(attribute.String("asset_id", req.AssetID))

	entry := models.WatchlistEntry{
		AssetID:        req.AssetID,
		Name:           req.Name,
		Symbol:         req.Symbol,
		ImageURL:       req.ImageURL,
		AddedPrice:     req.AddedPrice,
		AlertThreshold: req.AlertThreshold,
		AlertDirection: models.AlertDirection(req.AlertDirection),
	}
	if entry.AddedPrice <= 0 && entry.AssetID != "" {
		entry.AddedPrice = h.currentPrice(r, entry.AssetID, traceID)
	}

	added, err := s.AddToWatchlist(ctx, entry)
	if err != nil {
		writeError(w, traceID, "Failed to add to watchlist", err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Message: "Added to watchlist", Data: added})
}

// currentPrice looks up the price to record on a new entry. Zero when the
// market is unavailable.
func (h *Handler) currentPrice(r *http.Request, assetID, traceID string) float64 {
	snaps, err := h.market.FetchCurrentPrices(r.Context(), []string{assetID})
	if err != nil {
		logger.Log.Warn("No current price for new watchlist entry",
			zap.String("trace_id", traceID),
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return 0
	}
	for _, snap := range snaps {
		return snap.Price
	}
	return 0
}

func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "RemoveFromWatchlistHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	assetID := r.PathValue("id")
	removed, err := s.RemoveFromWatchlist(ctx, assetID)
	if err != nil {
		writeError(w, traceID, "Failed to remove from watchlist", err)
		return
	}
	if !removed {
		writeError(w, traceID, "Failed to remove from watchlist",
			fmt.Errorf("%s: %w", assetID, models.ErrNotFound))
		return
	}
	writeMessage(w, http.StatusOK, "Removed from watchlist")
}

func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "UpdateAlertHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	var req UpdateAlertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, traceID, "Invalid request body", err)
		return
	}
	entry, err := s.UpdateAlert(ctx, r.PathValue("id"), req.Threshold, models.AlertDirection(req.Direction))
	if err != nil {
		writeError(w, traceID, "Failed to update alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "Alert updated successfully", Data: entry})
}
