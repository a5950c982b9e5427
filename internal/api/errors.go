package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/rs/zerolog"
)

// respondError maps err onto a status code and writes the JSON error body.
// Unexpected errors are logged and hidden from the client.
func respondError(ctx *gin.Context, logger zerolog.Logger, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Msg("Request failed")
	}
	ctx.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, "bad_request", err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "Invalid or expired token"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperr.ErrAlreadyClosed):
		return http.StatusConflict, "already_closed", err.Error()
	case errors.Is(err, apperr.ErrRaceLost):
		return http.StatusConflict, "conflict", err.Error()
	default:
		return http.StatusInternalServerError, "server_error", "Internal server error"
	}
}

func badRequest(ctx *gin.Context, message string) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "bad_request",
		"message": message,
	})
}
