package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/recommend"
	"github.com/rs/zerolog"
)

// RecommendationViews handles recommendation requests.
type RecommendationViews struct {
	recommendations *recommend.Service
	logger          zerolog.Logger
}

// NewRecommendationViews creates a new recommendation views instance.
func NewRecommendationViews(svc *recommend.Service, logger zerolog.Logger) *RecommendationViews {
	return &RecommendationViews{
		recommendations: svc,
		logger:          logger.With().Str("handler", "recommendations").Logger(),
	}
}

// List returns the newest unread recommendations.
func (v *RecommendationViews) List(ctx *gin.Context) {
	list, err := v.recommendations.List(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"recommendations": list})
}

// MarkRead marks a recommendation as read.
func (v *RecommendationViews) MarkRead(ctx *gin.Context) {
	if err := v.recommendations.MarkRead(ctx.Request.Context(), userID(ctx), ctx.Param("id")); err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Recommendation marked as read"})
}

// Generate evaluates today's usage and stores new recommendations.
func (v *RecommendationViews) Generate(ctx *gin.Context) {
	created, err := v.recommendations.Generate(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":         "Recommendations generated",
		"recommendations": created,
	})
}
