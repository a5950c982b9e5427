// Package limits compares a user's daily platform usage against their limit
// profile and reports crossings.
package limits

import (
	"context"
	"fmt"

	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
)

// LimitSource resolves a user's daily limit in minutes for a platform.
type LimitSource interface {
	Limit(ctx context.Context, userID string, p platform.Platform) (int, error)
}

// UsageSource computes a user's per-platform usage for a date.
type UsageSource interface {
	Daily(ctx context.Context, userID, date string) (map[platform.Platform]usage.PlatformUsage, error)
}

// LimitEvent describes a limit crossing.
type LimitEvent struct {
	UserID   string
	Platform platform.Platform
	Date     string
	Usage    int
	Limit    int
}

// Notifier receives limit crossings.
type Notifier interface {
	LimitExceeded(ctx context.Context, event LimitEvent) error
}

// Evaluator checks usage against limits after activities close.
//
// It is advisory and re-entrant: every call that finds usage at or over the
// limit notifies once, so repeated calls may notify repeatedly. Suppressing
// duplicates is the notifier's job.
type Evaluator struct {
	limits   LimitSource
	usage    UsageSource
	notifier Notifier
	logger   zerolog.Logger
}

// NewEvaluator creates a new limit evaluator
func NewEvaluator(limits LimitSource, usage UsageSource, notifier Notifier, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		limits:   limits,
		usage:    usage,
		notifier: notifier,
		logger:   logger.With().Str("component", "limit-evaluator").Logger(),
	}
}

// CheckLimits notifies when the user's usage of p on date has reached their
// limit. Notifier failures are logged, not returned.
func (e *Evaluator) CheckLimits(ctx context.Context, userID string, p platform.Platform, date string) error {
	limit, err := e.limits.Limit(ctx, userID, p)
	if err != nil {
		return fmt.Errorf("load limit: %w", err)
	}

	daily, err := e.usage.Daily(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("load daily usage: %w", err)
	}

	used := daily[p].Duration
	if used < limit {
		return nil
	}

	metrics.LimitsExceeded.WithLabelValues(string(p)).Inc()
	e.logger.Info().
		Str("user_id", userID).
		Str("platform", string(p)).
		Str("date", date).
		Int("usage", used).
		Int("limit", limit).
		Msg("Daily limit reached")

	if e.notifier == nil {
		return nil
	}
	event := LimitEvent{UserID: userID, Platform: p, Date: date, Usage: used, Limit: limit}
	if err := e.notifier.LimitExceeded(ctx, event); err != nil {
		e.logger.Error().Err(err).
			Str("user_id", userID).
			Str("platform", string(p)).
			Msg("Failed to emit limit notification")
	}
	return nil
}
