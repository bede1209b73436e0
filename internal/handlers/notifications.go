package handlers

import (
	"net/http"
	"strconv"

	"cryptotracker/internal/models"
)

// NotificationList is the data of GET /api/notifications.
type NotificationList struct {
	UnreadCount   int                   `json:"unread_count"`
	Notifications []models.Notification `json:"notifications"`
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFrom(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, Response{
		Message: "Notifications retrieved successfully",
		Data: NotificationList{
			UnreadCount:   s.Notifications.UnreadCount(),
			Notifications: s.Notifications.Recent(limit),
		},
	})
}

func (h *Handler) NotificationFeed(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "NotificationFeedHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	feed, err := s.Feed.Feed(ctx)
	if err != nil {
		writeError(w, traceID, "Failed to render notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Message: "Feed retrieved successfully", Data: feed})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "MarkReadHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	if err := s.Notifications.MarkRead(ctx, r.PathValue("id")); err != nil {
		writeError(w, traceID, "Failed to mark notification read", err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification marked as read")
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "MarkAllReadHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	if err := s.Notifications.MarkAllRead(ctx); err != nil {
		writeError(w, traceID, "Failed to mark notifications read", err)
		return
	}
	writeMessage(w, http.StatusOK, "All notifications marked as read")
}

func (h *Handler) RemoveNotification(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "RemoveNotificationHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	if err := s.Notifications.Remove(ctx, r.PathValue("id")); err != nil {
		writeError(w, traceID, "Failed to remove notification", err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification removed")
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, span, traceID := startSpan(r, "ClearNotificationsHandler")
	defer span.End()
	s, _ := SessionFrom(r.Context())

	if err := s.Notifications.Clear(ctx); err != nil {
		writeError(w, traceID, "Failed to clear notifications", err)
		return
	}
	writeMessage(w, http.StatusOK, "Notifications cleared")
}
