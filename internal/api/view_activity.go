package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
)

// ActivityViews handles activity tracking and usage requests.
type ActivityViews struct {
	tracker    *usage.Tracker
	aggregator *usage.Aggregator
	logger     zerolog.Logger
}

// NewActivityViews creates a new activity views instance.
func NewActivityViews(tracker *usage.Tracker, aggregator *usage.Aggregator, logger zerolog.Logger) *ActivityViews {
	return &ActivityViews{
		tracker:    tracker,
		aggregator: aggregator,
		logger:     logger.With().Str("handler", "activity").Logger(),
	}
}

type startRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type endRequest struct {
	EndTime *time.Time `json:"endTime"`
}

type platformRequest struct {
	Platform string `json:"platform"`
}

// Start opens an activity session, closing the previous one on the same platform.
func (v *ActivityViews) Start(ctx *gin.Context) {
	var req startRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	p, err := platform.Parse(req.Platform)
	if err != nil {
		respondError(ctx, v.logger, apperr.Validation("platform", err.Error()))
		return
	}

	activity, err := v.tracker.StartSession(ctx.Request.Context(), userID(ctx), p, req.URL)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"activity": activity})
}

// End closes an activity session. A missing endTime means now.
func (v *ActivityViews) End(ctx *gin.Context) {
	var req endRequest
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	var endTime time.Time
	if req.EndTime != nil {
		endTime = *req.EndTime
	}

	activity, err := v.tracker.EndSession(ctx.Request.Context(), userID(ctx), ctx.Param("id"), endTime)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"activity": activity})
}

// EndActive closes today's open session on a platform, if there is one.
func (v *ActivityViews) EndActive(ctx *gin.Context) {
	var req platformRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	p, err := platform.Parse(req.Platform)
	if err != nil {
		respondError(ctx, v.logger, apperr.Validation("platform", err.Error()))
		return
	}

	activity, err := v.tracker.EndActiveSession(ctx.Request.Context(), userID(ctx), p)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"activity": activity})
}

// Daily returns per-platform usage for a date.
func (v *ActivityViews) Daily(ctx *gin.Context) {
	daily, err := v.aggregator.Daily(ctx.Request.Context(), userID(ctx), ctx.Param("date"))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	if daily == nil {
		daily = map[platform.Platform]usage.PlatformUsage{}
	}

	ctx.JSON(http.StatusOK, gin.H{"usage": daily})
}

// Weekly returns per-day, per-platform usage for a date range.
func (v *ActivityViews) Weekly(ctx *gin.Context) {
	weekly, err := v.aggregator.Weekly(ctx.Request.Context(), userID(ctx), ctx.Query("startDate"), ctx.Query("endDate"))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	if weekly == nil {
		weekly = []usage.DayUsage{}
	}

	ctx.JSON(http.StatusOK, gin.H{"usage": weekly})
}

// Monthly returns per-platform usage for a calendar month.
func (v *ActivityViews) Monthly(ctx *gin.Context) {
	year, err := strconv.Atoi(ctx.Param("year"))
	if err != nil {
		respondError(ctx, v.logger, apperr.Validation("year", "year must be a number"))
		return
	}
	month, err := strconv.Atoi(ctx.Param("month"))
	if err != nil {
		respondError(ctx, v.logger, apperr.Validation("month", "month must be a number"))
		return
	}

	monthly, err := v.aggregator.Monthly(ctx.Request.Context(), userID(ctx), year, month)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	if monthly == nil {
		monthly = map[platform.Platform]usage.PlatformUsage{}
	}

	ctx.JSON(http.StatusOK, gin.H{"usage": monthly})
}

// History returns a page of the user's activities, newest first.
func (v *ActivityViews) History(ctx *gin.Context) {
	query := usage.HistoryQuery{
		Platform: platform.Platform(ctx.Query("platform")),
		Date:     ctx.Query("date"),
	}

	var err error
	if query.Page, err = queryInt(ctx, "page"); err != nil {
		respondError(ctx, v.logger, apperr.Validation("page", "page must be a number"))
		return
	}
	if query.Limit, err = queryInt(ctx, "limit"); err != nil {
		respondError(ctx, v.logger, apperr.Validation("limit", "limit must be a number"))
		return
	}

	page, err := v.tracker.History(ctx.Request.Context(), userID(ctx), query)
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}
	if page.Activities == nil {
		page.Activities = []storage.Activity{}
	}

	ctx.JSON(http.StatusOK, page)
}

// Clear deletes the user's whole activity history.
func (v *ActivityViews) Clear(ctx *gin.Context) {
	deleted, err := v.tracker.Clear(ctx.Request.Context(), userID(ctx))
	if err != nil {
		respondError(ctx, v.logger, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Activity history cleared",
		"deleted": deleted,
	})
}

func queryInt(ctx *gin.Context, key string) (int, error) {
	value := ctx.Query(key)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
