package handlers

import (
	"net/http"
	"time"

	"issuetracker/internal/config"
	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's own notifications
type NotificationHandler struct {
	notifications services.NotificationServiceInterface
	pagination    config.PaginationConfig
	logger        *observability.Logger
	now           func() time.Time
}

func NewNotificationHandler(notifications services.NotificationServiceInterface, cfg *config.Config, logger *observability.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		pagination:    cfg.Pagination,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	q := newQueryFilters(c)
	filter := services.NotificationFilter{
		IsRead: q.bool("is_read"),
		Type:   models.NotificationType(q.str("notification_type")),
	}
	if !q.ok() {
		return
	}
	page := pageRequest(c, h.pagination)

	items, total, err := h.notifications.ListNotifications(c.Request.Context(), actor, filter, page)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	now := h.now()
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, convertNotification(n, now))
	}
	writePage(c, out, total, page)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	count, err := h.notifications.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertNotification(*n, h.now()))
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "updated": updated})
}
