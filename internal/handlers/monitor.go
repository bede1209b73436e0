package handlers

import (
	"net/http"
)

func (h *Handler) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	writeJSON(w, http.StatusOK, Response{Message: "Monitor status", Data: s.Monitor.Status()})
}

func (h *Handler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	msg := "Price monitoring already active"
	if s.StartMonitoring(r.Context()) {
		msg = "Price monitoring started"
	}
	writeJSON(w, http.StatusOK, Response{Message: msg, Data: s.Monitor.Status()})
}

func (h *Handler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	msg := "Price monitoring already stopped"
	if s.StopMonitoring() {
		msg = "Price monitoring stopped"
	}
	writeJSON(w, http.StatusOK, Response{Message: msg, Data: s.Monitor.Status()})
}

// PollMonitor runs one evaluation pass now. A pass that overlaps one already
// in flight, or a stopped monitor, reports applied=false.
func (h *Handler) PollMonitor(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "PollMonitorHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	applied, err := s.Monitor.Poll(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(w, traceID, "Price check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Message: "Price check complete",
		Data: map[string]any{
			"applied": applied,
			"status":  s.Monitor.Status(),
		},
	})
}
