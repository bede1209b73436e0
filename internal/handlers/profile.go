package handlers

import (
	"fmt"
	"net/http"
	"time"

	"cryptotracker/internal/models"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "GetProfileHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	p, err := s.Profile(ctx)
	if err != nil {
		writeError(w, traceID, "Failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "Profile retrieved successfully", Data: p})
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "SaveProfileHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	var p models.Profile
	if err := decodeBody(r, &p); err != nil {
		writeError(w, traceID, "Invalid request body", err)
		return
	}
	saved, err := s.SaveProfile(ctx, p)
	if err != nil {
		writeError(w, traceID, "Failed to save profile", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "Profile saved successfully", Data: saved})
}

// Export downloads everything stored for the user as one JSON document.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "ExportHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	export, err := s.Export(ctx)
	if err != nil {
		writeError(w, traceID, "Failed to export user data", err)
		return
	}
	filename := fmt.Sprintf("cryptotracker-%s-%s.json", s.Username(), export.ExportDate.Format(time.DateOnly))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writeJSON(w, http.StatusOK, export)
}
