package usage

import (
	"context"
	"time"

	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/rs/zerolog"
)

// RetentionScheduler deletes closed activities older than the retention
// period once a day.
type RetentionScheduler struct {
	activities    storage.ActivityStore
	retentionDays int
	hour, minute  int
	clock         clock.Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
	done          chan struct{}
}

// NewRetentionScheduler creates a scheduler that runs daily at hour:minute.
func NewRetentionScheduler(activities storage.ActivityStore, retentionDays, hour, minute int, clk clock.Clock, logger zerolog.Logger) *RetentionScheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RetentionScheduler{
		activities:    activities,
		retentionDays: retentionDays,
		hour:          hour,
		minute:        minute,
		clock:         clk,
		logger:        logger.With().Str("component", "retention-scheduler").Logger(),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Int("retention_days", rs.retentionDays).
		Int("hour", rs.hour).
		Int("minute", rs.minute).
		Msg("Activity retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	<-rs.done
	rs.logger.Info().Msg("Activity retention scheduler stopped")
}

func (rs *RetentionScheduler) run() {
	defer close(rs.done)

	for {
		next := rs.nextRun(rs.clock.Now())
		wait := next.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_run", next).
			Dur("wait_duration", wait).
			Msg("Scheduled next retention cleanup")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if _, err := rs.Purge(context.Background()); err != nil {
				rs.logger.Error().Err(err).Msg("Failed to purge old activities")
			}
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextRun returns the next cleanup time after now
func (rs *RetentionScheduler) nextRun(now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), rs.hour, rs.minute, 0, 0, now.Location())
	if now.Before(today) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

// Purge deletes closed activities that started before the retention cutoff.
func (rs *RetentionScheduler) Purge(ctx context.Context) (int, error) {
	if rs.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := rs.clock.Now().AddDate(0, 0, -rs.retentionDays)
	deleted, err := rs.activities.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	metrics.ActivitiesPurged.Add(float64(deleted))
	rs.logger.Info().
		Int("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Old activities purged")
	return deleted, nil
}
