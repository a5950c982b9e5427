package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/users"
	"github.com/rs/zerolog"
)

// UserViews handles profile and limit requests.
type UserViews struct {
	users  *users.Service
	logger zerolog.Logger
}

// NewUserViews creates a new user views instance.
func NewUserViews(svc *users.Service, logger zerolog.Logger) *UserViews {
	return &UserViews{
		users:  svc,
		logger: logger.With().Str("handler", "users").Logger(),
	}
}

type profileRequest struct {
	Name        *string              `json:"name"`
	Email       *string              `json:"email"`
	Preferences *storage.Preferences `json:"preferences"`
}

type limitsRequest struct {
	Limits map[string]int `json:"limits"`
}

type notificationsRequest struct {
	Notifications *storage.NotificationSettings `json:"notifications"`
}

type preferencesRequest struct {
	Preferences *storage.Preferences `json:"preferences"`
}

// Profile returns the user's profile.
func (v *UserViews) Profile(ctx *gin.Context) {
	user, err := v.users.Profile(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile changes name, email and preferences.
func (v *UserViews) UpdateProfile(ctx *gin.Context) {
	var req profileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	user, err := v.users.UpdateProfile(ctx.Request.Context(), userID(ctx), users.ProfileUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Preferences: req.Preferences,
	})
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateLimits merges new daily limits into the profile.
func (v *UserViews) UpdateLimits(ctx *gin.Context) {
	var req limitsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	user, err := v.users.UpdateLimits(ctx.Request.Context(), userID(ctx), req.Limits)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateNotifications replaces the notification channel settings.
func (v *UserViews) UpdateNotifications(ctx *gin.Context) {
	var req notificationsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Notifications == nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	user, err := v.users.UpdateNotifications(ctx.Request.Context(), userID(ctx), *req.Notifications)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdatePreferences replaces the user's preferences.
func (v *UserViews) UpdatePreferences(ctx *gin.Context) {
	var req preferencesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Preferences == nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	user, err := v.users.UpdatePreferences(ctx.Request.Context(), userID(ctx), *req.Preferences)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}
