package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"projecthub/internal/service"
)

type NotificationHandler struct {
	svc  *service.NotificationService
	errs ErrorMapper
}

func NewNotificationHandler(svc *service.NotificationService, errs ErrorMapper) *NotificationHandler {
	return &NotificationHandler{svc: svc, errs: errs}
}

// ListNotifications GET /api/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// MarkRead POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkRead(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.svc.MarkAllRead(c.Request.Context(), principal(c))
	if err != nil {
		h.errs.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}
