package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/notify"
	"github.com/rs/zerolog"
)

// NotificationViews handles in-app notification requests.
type NotificationViews struct {
	notifications *notify.Service
	logger        zerolog.Logger
}

// NewNotificationViews creates a new notification views instance.
func NewNotificationViews(svc *notify.Service, logger zerolog.Logger) *NotificationViews {
	return &NotificationViews{
		notifications: svc,
		logger:        logger.With().Str("handler", "notifications").Logger(),
	}
}

// List returns unread notifications.
func (v *NotificationViews) List(ctx *gin.Context) {
	list, err := v.notifications.List(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead marks a notification as read.
func (v *NotificationViews) MarkRead(ctx *gin.Context) {
	if err := v.notifications.MarkRead(ctx.Request.Context(), userID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// MarkAllRead marks every notification as read.
func (v *NotificationViews) MarkAllRead(ctx *gin.Context) {
	count, err := v.notifications.MarkAllRead(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "All notifications marked as read",
		"count":   count,
	})
}

// Delete removes a notification.
func (v *NotificationViews) Delete(ctx *gin.Context) {
	if err := v.notifications.Delete(ctx.Request.Context(), userID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}
