package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"agency-portal-backend/internal/model"
	"agency-portal-backend/internal/mw"
	"agency-portal-backend/internal/store"
)

// ListNotifications handles GET /api/notifications for the caller.
func (h *Handler) ListNotifications(c *gin.Context) {
	recipientID := c.GetString(mw.ContextUserID)

	filters := store.ListFilters{
		Type:           model.NotificationType(c.Query("type")),
		UnreadOnly:     c.Query("unreadOnly") == "true",
		IncludeExpired: c.Query("includeExpired") == "true",
	}
	if filters.Type != "" && !model.ValidType(filters.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
		return
	}

	views, err := h.store.ListFor(c.Request.Context(), recipientID, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	unread, err := h.store.UnreadCount(c.Request.Context(), recipientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": views,
		"unreadCount":   unread,
	})
}

// PutNotificationAction fans the PUT surface out to mark-read or
// mark-all-read based on the path under /api/notifications.
func (h *Handler) PutNotificationAction(c *gin.Context) {
	action := strings.Trim(c.Param("action"), "/")
	switch {
	case action == "read-all":
		h.MarkAllRead(c)
	case strings.HasSuffix(action, "/read"):
		c.Params = append(c.Params, gin.Param{Key: "id", Value: strings.TrimSuffix(action, "/read")})
		h.MarkRead(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	}
}

// MarkRead handles PUT /api/notifications/:id/read. Marking twice is the
// same as marking once.
func (h *Handler) MarkRead(c *gin.Context) {
	recipientID := c.GetString(mw.ContextUserID)

	err := h.store.MarkRead(c.Request.Context(), c.Param("id"), recipientID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mw.InvalidateUser(h.respCache, recipientID)
	c.Status(http.StatusNoContent)
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	recipientID := c.GetString(mw.ContextUserID)

	if err := h.store.MarkAllRead(c.Request.Context(), recipientID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mw.InvalidateUser(h.respCache, recipientID)
	c.Status(http.StatusNoContent)
}

// DeleteNotification handles DELETE /api/notifications/:id (admin only).
func (h *Handler) DeleteNotification(c *gin.Context) {
	err := h.store.DeleteNotification(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.respCache.Flush()
	c.Status(http.StatusNoContent)
}

type createNotificationRequest struct {
	Recipients     []string `json:"recipients"`
	Title          string   `json:"title" binding:"required"`
	Message        string   `json:"message" binding:"required"`
	Type           string   `json:"type"`
	Priority       string   `json:"priority"`
	ActionURL      string   `json:"actionUrl"`
	ActionText     string   `json:"actionText"`
	ExpiresAt      string   `json:"expiresAt"`
	RelatedProject string   `json:"relatedProject"`
}

// CreateNotification handles POST /api/notifications: a targeted
// notification for an explicit recipient set.
func (h *Handler) CreateNotification(c *gin.Context) {
	h.createNotification(c, false)
}

// CreateBroadcast handles POST /api/notifications/broadcast: the addressee
// set is all current clients, resolved at query time.
func (h *Handler) CreateBroadcast(c *gin.Context) {
	h.createNotification(c, true)
}

func (h *Handler) createNotification(c *gin.Context, broadcast bool) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n := &model.Notification{
		Title:            req.Title,
		Message:          req.Message,
		Type:             model.NotificationType(req.Type),
		Priority:         model.NotificationPriority(req.Priority),
		SenderID:         c.GetString(mw.ContextUserID),
		Broadcast:        broadcast,
		RelatedProjectID: req.RelatedProject,
		ActionURL:        req.ActionURL,
		ActionText:       req.ActionText,
	}
	if req.ExpiresAt != "" {
		at, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be RFC3339"})
			return
		}
		n.ExpiresAt = &at
	}
	if !broadcast {
		for _, r := range req.Recipients {
			n.Recipients = append(n.Recipients, model.NotificationRecipient{RecipientID: r})
		}
	}

	if err := h.store.CreateNotification(c.Request.Context(), n); err != nil {
		var ve *store.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.respCache.Flush()
	if h.dispatcher != nil {
		h.dispatcher.Enqueue(n.ID)
	}

	c.JSON(http.StatusCreated, gin.H{"id": n.ID})
}

// GetStats handles GET /api/notifications/stats for the caller.
func (h *Handler) GetStats(c *gin.Context) {
	recipientID := c.GetString(mw.ContextUserID)

	stats, err := h.store.Stats(c.Request.Context(), recipientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
