// Package users manages user limit profiles and notification settings.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultLimitMinutes is the daily limit of a platform nobody configured.
	DefaultLimitMinutes = 60

	MinLimitMinutes = 1
	MaxLimitMinutes = 1440
)

// A single validator instance caches its parsed rules.
var validate = validator.New()

var limitRule = fmt.Sprintf("min=%d,max=%d", MinLimitMinutes, MaxLimitMinutes)

// ProfileUpdate carries the profile fields to change. Nil fields are left as they are.
type ProfileUpdate struct {
	Name        *string
	Email       *string
	Preferences *storage.Preferences
}

// Service reads and updates user profiles.
type Service struct {
	users        storage.UserStore
	defaultLimit int
	clock        clock.Clock
	logger       zerolog.Logger
}

// NewService creates a user service. A non-positive defaultLimit falls back to DefaultLimitMinutes.
func NewService(users storage.UserStore, defaultLimit int, clk clock.Clock, logger zerolog.Logger) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimitMinutes
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		users:        users,
		defaultLimit: defaultLimit,
		clock:        clk,
		logger:       logger.With().Str("component", "users").Logger(),
	}
}

// DefaultProfile returns the profile of a user that has never been saved.
func (s *Service) DefaultProfile(userID string) *storage.User {
	limits := make(map[platform.Platform]int, len(platform.All()))
	for _, p := range platform.All() {
		limits[p] = s.defaultLimit
	}
	return &storage.User{
		ID:     userID,
		Limits: limits,
		Notifications: storage.NotificationSettings{
			Email:   true,
			Browser: true,
		},
		Preferences: storage.Preferences{
			Reminders:            true,
			MotivationalMessages: true,
		},
	}
}

// Profile returns the stored profile of userID, or the default profile if
// none was saved. Missing platform limits are filled with the default.
func (s *Service) Profile(ctx context.Context, userID string) (*storage.User, error) {
	if userID == "" {
		return nil, apperr.Validation("user", "user id is required")
	}

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.DefaultProfile(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.Limits == nil {
		user.Limits = make(map[platform.Platform]int)
	}
	for _, p := range platform.All() {
		if user.Limits[p] <= 0 {
			user.Limits[p] = s.defaultLimit
		}
	}
	return user, nil
}

// Limit returns the daily limit in minutes of userID for p.
func (s *Service) Limit(ctx context.Context, userID string, p platform.Platform) (int, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Limits[p], nil
}

// UpdateProfile changes name, email and preferences.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*storage.User, error) {
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if err := validate.Var(email, "omitempty,email,max=254"); err != nil {
			return nil, apperr.Validation("email", "invalid email address")
		}
		update.Email = &email
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := validate.Var(name, "max=100"); err != nil {
			return nil, apperr.Validation("name", "name must be at most 100 characters")
		}
		update.Name = &name
	}

	return s.update(ctx, userID, func(user *storage.User) {
		if update.Name != nil {
			user.Name = *update.Name
		}
		if update.Email != nil {
			user.Email = *update.Email
		}
		if update.Preferences != nil {
			user.Preferences = *update.Preferences
		}
	})
}

// UpdateLimits merges limits into the user's limit profile. Keys must name
// a supported platform and values must be between 1 and 1440 minutes.
func (s *Service) UpdateLimits(ctx context.Context, userID string, limits map[string]int) (*storage.User, error) {
	if len(limits) == 0 {
		return nil, apperr.Validation("limits", "at least one limit is required")
	}

	parsed := make(map[platform.Platform]int, len(limits))
	for key, minutes := range limits {
		p, err := platform.Parse(key)
		if err != nil {
			return nil, apperr.Validation("limits", err.Error())
		}
		if err := validate.Var(minutes, limitRule); err != nil {
			return nil, apperr.Validation("limits", fmt.Sprintf("%s limit must be between %d and %d minutes", p, MinLimitMinutes, MaxLimitMinutes))
		}
		parsed[p] = minutes
	}

	user, err := s.update(ctx, userID, func(user *storage.User) {
		for p, minutes := range parsed {
			user.Limits[p] = minutes
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", userID).Interface("limits", parsed).Msg("Updated limits")
	return user, nil
}

// UpdateNotifications replaces the user's notification channel settings.
func (s *Service) UpdateNotifications(ctx context.Context, userID string, settings storage.NotificationSettings) (*storage.User, error) {
	return s.update(ctx, userID, func(user *storage.User) {
		user.Notifications = settings
	})
}

// UpdatePreferences replaces the user's preferences.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs storage.Preferences) (*storage.User, error) {
	return s.update(ctx, userID, func(user *storage.User) {
		user.Preferences = prefs
	})
}

func (s *Service) update(ctx context.Context, userID string, apply func(*storage.User)) (*storage.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	apply(user)
	user.UpdatedAt = now

	if err := s.users.Upsert(ctx, *user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}
