// Package recommend generates wellbeing recommendations from a user's daily
// usage with the recommendation policy.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/limits"
	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/policy"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultDedupWindow = 24 * time.Hour
	DefaultListLimit   = 10
)

// Recommender evaluates recommendation rules.
type Recommender interface {
	Recommend(ctx context.Context, input policy.Input) ([]policy.Suggestion, error)
}

// Config holds recommendation service configuration
type Config struct {
	Location    *time.Location
	DedupWindow time.Duration
	ListLimit   int
}

// Service generates and serves recommendations.
type Service struct {
	recommendations storage.RecommendationStore
	engine          Recommender
	usage           limits.UsageSource
	limits          limits.LimitSource
	location        *time.Location
	dedupWindow     time.Duration
	listLimit       int
	clock           clock.Clock
	logger          zerolog.Logger
}

// NewService creates a recommendation service
func NewService(recommendations storage.RecommendationStore, engine Recommender, usage limits.UsageSource, limitSource limits.LimitSource, cfg Config, clk clock.Clock, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		recommendations: recommendations,
		engine:          engine,
		usage:           usage,
		limits:          limitSource,
		location:        cfg.Location,
		dedupWindow:     cfg.DedupWindow,
		listLimit:       cfg.ListLimit,
		clock:           clk,
		logger:          logger.With().Str("component", "recommend").Logger(),
	}
}

// Generate evaluates today's usage of userID and stores every suggestion that
// was not already made in the last dedup window. It returns the stored ones.
func (s *Service) Generate(ctx context.Context, userID string) ([]storage.Recommendation, error) {
	now := s.clock.Now()
	date := storage.DateKey(now, s.location)

	daily, err := s.usage.Daily(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("load daily usage: %w", err)
	}

	input := policy.Input{
		Usage:  make(map[string]policy.PlatformUsage, len(daily)),
		Limits: make(map[string]int, len(platform.All())),
	}
	for p, u := range daily {
		input.Usage[string(p)] = policy.PlatformUsage{Duration: u.Duration, Sessions: u.Sessions}
		input.TotalMinutes += u.Duration
	}
	for _, p := range platform.All() {
		limit, err := s.limits.Limit(ctx, userID, p)
		if err != nil {
			return nil, fmt.Errorf("load limit: %w", err)
		}
		input.Limits[string(p)] = limit
	}

	suggestions, err := s.engine.Recommend(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("evaluate recommendations: %w", err)
	}

	since := now.Add(-s.dedupWindow)
	created := make([]storage.Recommendation, 0, len(suggestions))
	for _, suggestion := range suggestions {
		rec := storage.Recommendation{
			ID:        uuid.New().String(),
			UserID:    userID,
			Type:      storage.RecommendationType(suggestion.Type),
			Platform:  platform.Platform(suggestion.Platform),
			Title:     suggestion.Title,
			Message:   suggestion.Message,
			CreatedAt: now,
		}

		recent, err := s.recommendations.HasRecent(ctx, userID, rec.Type, rec.Platform, since)
		if err != nil {
			return nil, fmt.Errorf("check recent recommendations: %w", err)
		}
		if recent {
			continue
		}

		if err := s.recommendations.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("store recommendation: %w", err)
		}
		metrics.RecommendationsGenerated.WithLabelValues(string(rec.Type)).Inc()
		created = append(created, rec)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Int("suggested", len(suggestions)).
		Int("stored", len(created)).
		Msg("Generated recommendations")

	return created, nil
}

// List returns the user's newest unread recommendations.
func (s *Service) List(ctx context.Context, userID string) ([]storage.Recommendation, error) {
	recs, err := s.recommendations.ListUnread(ctx, userID, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	if recs == nil {
		recs = []storage.Recommendation{}
	}
	return recs, nil
}

// MarkRead marks one of the user's recommendations as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	err := s.recommendations.MarkRead(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("recommendation", id)
	}
	return err
}
