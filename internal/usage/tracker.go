package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxSessionAge is how long an activity may stay open before the
	// sweeper closes it.
	DefaultMaxSessionAge = 4 * time.Hour

	// DefaultSweepInterval is how often open activities are checked.
	DefaultSweepInterval = time.Minute

	// DefaultHistoryLimit is the page size of history queries.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps the page size of history queries.
	MaxHistoryLimit = 200
)

// LimitChecker is notified after every closed activity.
type LimitChecker interface {
	CheckLimits(ctx context.Context, userID string, p platform.Platform, date string) error
}

// Config holds tracker configuration
type Config struct {
	Location      *time.Location
	MaxSessionAge time.Duration
	SweepInterval time.Duration
}

// Tracker owns the activity session lifecycle: it keeps at most one open
// activity per (user, platform, date), closes activities with a rounded
// duration, and sweeps activities left open by clients that went away.
type Tracker struct {
	activities storage.ActivityStore
	checker    LimitChecker
	clock      clock.Clock
	location   *time.Location
	maxAge     time.Duration
	interval   time.Duration
	logger     zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewTracker creates a new session tracker. checker may be nil.
func NewTracker(activities storage.ActivityStore, checker LimitChecker, config Config, clk clock.Clock, logger zerolog.Logger) *Tracker {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.MaxSessionAge <= 0 {
		config.MaxSessionAge = DefaultMaxSessionAge
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Tracker{
		activities: activities,
		checker:    checker,
		clock:      clk,
		location:   config.Location,
		maxAge:     config.MaxSessionAge,
		interval:   config.SweepInterval,
		logger:     logger.With().Str("component", "session-tracker").Logger(),
	}
}

// Today returns the current activity date.
func (t *Tracker) Today() string {
	return storage.DateKey(t.clock.Now(), t.location)
}

// StartSession closes the user's open activity on p for today, if any, and
// opens a new one starting now.
func (t *Tracker) StartSession(ctx context.Context, userID string, p platform.Platform, url string) (*storage.Activity, error) {
	if userID == "" {
		return nil, apperr.Validation("userId", "user is required")
	}
	if p == "" {
		return nil, apperr.Validation("platform", "platform is required")
	}
	if !p.Valid() {
		return nil, apperr.Validation("platform", fmt.Sprintf("unsupported platform %q", p))
	}

	// A concurrent start may claim the slot between close and create;
	// close whatever won and try once more.
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := t.endActive(ctx, userID, p, closeReasonReplaced); err != nil {
			return nil, err
		}

		now := t.clock.Now()
		activity := storage.Activity{
			ID:        uuid.NewString(),
			UserID:    userID,
			Platform:  p,
			StartTime: now,
			URL:       url,
			Date:      storage.DateKey(now, t.location),
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := t.activities.CreateOpen(ctx, activity)
		if err == nil {
			metrics.SessionsStarted.WithLabelValues(string(p)).Inc()
			t.logger.Info().
				Str("activity_id", activity.ID).
				Str("user_id", userID).
				Str("platform", string(p)).
				Msg("Started activity session")
			return &activity, nil
		}
		if !errors.Is(err, storage.ErrOpenSessionExists) {
			return nil, fmt.Errorf("create activity: %w", err)
		}

		metrics.SessionStartRetries.Inc()
		t.logger.Debug().
			Str("user_id", userID).
			Str("platform", string(p)).
			Int("attempt", attempt+1).
			Msg("Open slot taken by concurrent start")
	}

	return nil, apperr.ErrRaceLost
}

// EndSession closes the activity id at endTime. A non-empty userID must own
// the activity. Closing an already closed activity fails with
// apperr.ErrAlreadyClosed and leaves it untouched.
func (t *Tracker) EndSession(ctx context.Context, userID, id string, endTime time.Time) (*storage.Activity, error) {
	activity, err := t.activities.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("activity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	if userID != "" && activity.UserID != userID {
		return nil, apperr.NotFound("activity", id)
	}
	if !activity.Open() {
		return nil, fmt.Errorf("activity %s: %w", id, apperr.ErrAlreadyClosed)
	}

	if endTime.IsZero() {
		endTime = t.clock.Now()
	}
	return t.close(ctx, activity, endTime, closeReasonEnded)
}

// EndActiveSession closes the user's open activity on p for today. It
// returns nil when none is open.
func (t *Tracker) EndActiveSession(ctx context.Context, userID string, p platform.Platform) (*storage.Activity, error) {
	if !p.Valid() {
		return nil, apperr.Validation("platform", fmt.Sprintf("unsupported platform %q", p))
	}
	return t.endActive(ctx, userID, p, closeReasonEnded)
}

func (t *Tracker) endActive(ctx context.Context, userID string, p platform.Platform, reason string) (*storage.Activity, error) {
	open, err := t.activities.FindOpen(ctx, userID, p, t.Today())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open activity: %w", err)
	}

	closed, err := t.close(ctx, open, t.clock.Now(), reason)
	if errors.Is(err, apperr.ErrAlreadyClosed) {
		// Closed concurrently; the slot is free either way
		return nil, nil
	}
	return closed, err
}

// close persists the end of activity and runs the limit check.
func (t *Tracker) close(ctx context.Context, activity *storage.Activity, endTime time.Time, reason string) (*storage.Activity, error) {
	if endTime.Before(activity.StartTime) {
		endTime = activity.StartTime
	}
	duration := DurationMinutes(activity.StartTime, endTime)

	closed, err := t.activities.Close(ctx, activity.ID, endTime, duration, t.clock.Now())
	if errors.Is(err, storage.ErrAlreadyClosed) {
		return nil, fmt.Errorf("activity %s: %w", activity.ID, apperr.ErrAlreadyClosed)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("activity", activity.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("close activity: %w", err)
	}

	metrics.SessionsClosed.WithLabelValues(string(closed.Platform), reason).Inc()
	metrics.UsageMinutesConsumed.WithLabelValues(string(closed.Platform)).Add(float64(closed.Duration))

	t.logger.Info().
		Str("activity_id", closed.ID).
		Str("user_id", closed.UserID).
		Str("platform", string(closed.Platform)).
		Int("duration", closed.Duration).
		Str("reason", reason).
		Msg("Closed activity session")

	if t.checker != nil {
		if err := t.checker.CheckLimits(ctx, closed.UserID, closed.Platform, closed.Date); err != nil {
			t.logger.Error().Err(err).
				Str("activity_id", closed.ID).
				Str("user_id", closed.UserID).
				Msg("Limit check failed")
		}
	}

	return closed, nil
}

// DurationMinutes returns the whole minutes between start and end. Exact
// half minutes round down, and the result is never negative.
func DurationMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Ceil(elapsed.Minutes() - 0.5))
}

// CloseStale closes open activities older than the maximum session age or
// started on an earlier date. It returns the number closed.
func (t *Tracker) CloseStale(ctx context.Context) (int, error) {
	open, err := t.activities.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open activities: %w", err)
	}

	now := t.clock.Now()
	today := storage.DateKey(now, t.location)
	closed := 0

	for i := range open {
		activity := &open[i]
		deadline := activity.StartTime.Add(t.maxAge)
		if now.Before(deadline) && activity.Date >= today {
			continue
		}

		endTime := now
		if deadline.Before(endTime) {
			endTime = deadline
		}

		if _, err := t.close(ctx, activity, endTime, closeReasonStale); err != nil {
			if errors.Is(err, apperr.ErrAlreadyClosed) || errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			t.logger.Error().Err(err).Str("activity_id", activity.ID).Msg("Failed to close stale activity")
			continue
		}
		closed++
	}

	if closed > 0 {
		t.logger.Info().Int("closed", closed).Msg("Closed stale activity sessions")
	}
	return closed, nil
}

// History returns one page of the user's activities, newest first.
func (t *Tracker) History(ctx context.Context, userID string, query HistoryQuery) (*HistoryPage, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = DefaultHistoryLimit
	}
	if query.Limit > MaxHistoryLimit {
		query.Limit = MaxHistoryLimit
	}
	if query.Platform != "" && !query.Platform.Valid() {
		return nil, apperr.Validation("platform", fmt.Sprintf("unsupported platform %q", query.Platform))
	}
	if query.Date != "" {
		if _, err := time.Parse(storage.DateLayout, query.Date); err != nil {
			return nil, apperr.Validation("date", "date must be YYYY-MM-DD")
		}
	}

	activities, total, err := t.activities.Query(ctx, storage.ActivityFilter{
		UserID:   userID,
		Platform: query.Platform,
		Date:     query.Date,
		Limit:    query.Limit,
		Offset:   (query.Page - 1) * query.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	return &HistoryPage{
		Activities:  activities,
		TotalPages:  (total + query.Limit - 1) / query.Limit,
		CurrentPage: query.Page,
		Total:       total,
	}, nil
}

// Clear deletes all of the user's activities.
func (t *Tracker) Clear(ctx context.Context, userID string) (int, error) {
	deleted, err := t.activities.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear activities: %w", err)
	}
	t.logger.Info().Str("user_id", userID).Int("deleted", deleted).Msg("Cleared activity history")
	return deleted, nil
}

// Start begins the stale session sweeper
func (t *Tracker) Start() {
	t.stopChan = make(chan struct{})
	t.wg.Add(1)
	go t.sweep()
	t.logger.Info().
		Dur("interval", t.interval).
		Dur("max_session_age", t.maxAge).
		Msg("Stale session sweeper started")
}

// Stop stops the sweeper and waits for it to exit
func (t *Tracker) Stop() {
	if t.stopChan == nil {
		return
	}
	close(t.stopChan)
	t.wg.Wait()
	t.stopChan = nil
	t.logger.Info().Msg("Stale session sweeper stopped")
}

func (t *Tracker) sweep() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := t.CloseStale(context.Background()); err != nil {
				t.logger.Error().Err(err).Msg("Stale session sweep failed")
			}
		case <-t.stopChan:
			return
		}
	}
}
