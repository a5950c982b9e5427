// Package notify records limit notifications and delivers them over email.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/limits"
	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultDedupWindow  = 24 * time.Hour
	DefaultEmailTimeout = 10 * time.Second

	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// ProfileSource resolves a user's notification settings and address.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*storage.User, error)
}

// EmitterConfig holds emitter configuration
type EmitterConfig struct {
	// DedupWindow suppresses repeat notifications for the same
	// (user, platform). Zero disables suppression.
	DedupWindow  time.Duration
	EmailTimeout time.Duration
}

// Emitter turns limit crossings into in-app notifications and emails.
type Emitter struct {
	notifications storage.NotificationStore
	profiles      ProfileSource
	mailer        Mailer
	dedupWindow   time.Duration
	emailTimeout  time.Duration
	clock         clock.Clock
	logger        zerolog.Logger

	wg sync.WaitGroup
}

// NewEmitter creates a notification emitter. A nil mailer disables email.
func NewEmitter(notifications storage.NotificationStore, profiles ProfileSource, mailer Mailer, cfg EmitterConfig, clk clock.Clock, logger zerolog.Logger) *Emitter {
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.EmailTimeout <= 0 {
		cfg.EmailTimeout = DefaultEmailTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Emitter{
		notifications: notifications,
		profiles:      profiles,
		mailer:        mailer,
		dedupWindow:   cfg.DedupWindow,
		emailTimeout:  cfg.EmailTimeout,
		clock:         clk,
		logger:        logger.With().Str("component", "notify").Logger(),
	}
}

// LimitMessage is the text of a limit notification.
func LimitMessage(event limits.LimitEvent) string {
	return fmt.Sprintf("You've exceeded your daily limit for %s. Usage: %d minutes, Limit: %d minutes.",
		event.Platform.Title(), event.Usage, event.Limit)
}

// LimitExceeded records an in-app notification for event and, when the user
// has email enabled, sends it in the background. Email failures are logged
// and never returned.
func (e *Emitter) LimitExceeded(ctx context.Context, event limits.LimitEvent) error {
	now := e.clock.Now()

	if e.dedupWindow > 0 {
		recent, err := e.notifications.HasRecent(ctx, event.UserID, event.Platform, now.Add(-e.dedupWindow))
		if err != nil {
			return fmt.Errorf("check recent notifications: %w", err)
		}
		if recent {
			metrics.NotificationsTotal.WithLabelValues(ChannelInApp, "suppressed").Inc()
			e.logger.Debug().
				Str("user_id", event.UserID).
				Str("platform", string(event.Platform)).
				Msg("Limit notification suppressed")
			return nil
		}
	}

	notification := storage.Notification{
		ID:        uuid.New().String(),
		UserID:    event.UserID,
		Type:      storage.NotificationLimitExceeded,
		Platform:  event.Platform,
		Usage:     event.Usage,
		Limit:     event.Limit,
		Message:   LimitMessage(event),
		CreatedAt: now,
	}
	if err := e.notifications.Create(ctx, notification); err != nil {
		metrics.NotificationsTotal.WithLabelValues(ChannelInApp, "error").Inc()
		return fmt.Errorf("record notification: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(ChannelInApp, "sent").Inc()

	e.logger.Info().
		Str("user_id", event.UserID).
		Str("platform", string(event.Platform)).
		Int("usage", event.Usage).
		Int("limit", event.Limit).
		Msg("Limit notification recorded")

	if e.mailer == nil {
		return nil
	}

	user, err := e.profiles.Profile(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !user.Notifications.Email || user.Email == "" {
		return nil
	}

	e.wg.Add(1)
	go e.sendEmail(user.Email, notification)

	return nil
}

func (e *Emitter) sendEmail(to string, notification storage.Notification) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.emailTimeout)
	defer cancel()

	subject := fmt.Sprintf("Daily limit reached for %s", notification.Platform.Title())
	if err := e.mailer.Send(ctx, to, subject, notification.Message); err != nil {
		metrics.NotificationsTotal.WithLabelValues(ChannelEmail, "error").Inc()
		e.logger.Error().Err(err).
			Str("user_id", notification.UserID).
			Str("platform", string(notification.Platform)).
			Msg("Failed to send limit email")
		return
	}

	metrics.NotificationsTotal.WithLabelValues(ChannelEmail, "sent").Inc()
	e.logger.Debug().Str("user_id", notification.UserID).Msg("Limit email sent")
}

// Wait blocks until in-flight email deliveries finish.
func (e *Emitter) Wait() {
	e.wg.Wait()
}
