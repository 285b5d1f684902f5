package handlers

import (
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*BaseHandler
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:   NewBaseHandler(log),
		notifications: notifications,
	}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	n := router.Group("/notifications")
	{
		n.GET("", h.List)
		n.POST("/:id/read", h.MarkRead)
	}
}

func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	params := h.ParsePagination(c)
	items, total, err := h.notifications.List(c.Request.Context(), actor, params)
	if err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondPage(c, items, total, params)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := h.AuthenticateUser(c)
	if !ok {
		return
	}
	id, ok := h.ValidateUUID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), actor, id); err != nil {
		h.RespondServiceError(c, err)
		return
	}
	h.RespondSuccess(c, SuccessResponse{Message: "Notification marked as read", Success: true})
}
