// Package agent follows browser tab activity and mirrors it onto the
// tracking API as start/end session calls.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
)

// DefaultLimitMinutes is used when the profile cannot be fetched or has no
// limit for the platform.
const DefaultLimitMinutes = 60

// LimitAlert reports a tab session that has run up to its platform limit.
type LimitAlert struct {
	TabID          int               `json:"tabId"`
	ActivityID     string            `json:"activityId"`
	Platform       platform.Platform `json:"platform"`
	ElapsedMinutes int               `json:"elapsedMinutes"`
	LimitMinutes   int               `json:"limitMinutes"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
}

// Remote is the tracking API as seen by the agent.
type Remote interface {
	StartSession(ctx context.Context, p platform.Platform, url string) (*storage.Activity, error)
	EndSession(ctx context.Context, id string, endTime time.Time) (*storage.Activity, error)
	Profile(ctx context.Context) (*storage.User, error)
	DailyUsage(ctx context.Context, date string) (map[platform.Platform]usage.PlatformUsage, error)
}

// Classifier maps a URL to a tracked platform.
type Classifier interface {
	Classify(rawURL string) (platform.Platform, bool)
}

// Agent tracks one session per browser tab.
type Agent struct {
	remote      Remote
	classifier  Classifier
	sessions    *TabSessions
	credentials *Credentials
	clock       clock.Clock
	location    *time.Location
	logger      zerolog.Logger

	mu      sync.Mutex
	alerted map[string]struct{} // activity ids already reported over limit
}

// New creates an agent. A nil location means UTC.
func New(remote Remote, classifier Classifier, credentials *Credentials, clk clock.Clock, location *time.Location, logger zerolog.Logger) *Agent {
	if location == nil {
		location = time.UTC
	}
	return &Agent{
		remote:      remote,
		classifier:  classifier,
		sessions:    NewTabSessions(),
		credentials: credentials,
		clock:       clk,
		location:    location,
		logger:      logger.With().Str("component", "agent").Logger(),
		alerted:     make(map[string]struct{}),
	}
}

// OnTabURLChange handles a tab navigating to url.
func (a *Agent) OnTabURLChange(ctx context.Context, tabID int, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn() {
		a.logger.Debug().Int("tab", tabID).Msg("No token, skipping tracking")
		return
	}

	p, matched := a.classifier.Classify(url)
	current, tracked := a.sessions.Lookup(tabID)
	if tracked && matched && current.Platform == p {
		return
	}

	if tracked {
		a.end(ctx, tabID)
	}
	if matched {
		a.start(ctx, tabID, p, url)
	}
}

// OnTabActivated handles a tab becoming the active tab.
func (a *Agent) OnTabActivated(ctx context.Context, tabID int, url string) {
	a.OnTabURLChange(ctx, tabID, url)
}

// OnWindowFocusGained handles a window regaining focus with tabID active.
func (a *Agent) OnWindowFocusGained(ctx context.Context, tabID int, url string) {
	a.OnTabURLChange(ctx, tabID, url)
}

// OnTabClosed ends the session of a closed tab.
func (a *Agent) OnTabClosed(ctx context.Context, tabID int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn() {
		return
	}
	if _, tracked := a.sessions.Lookup(tabID); tracked {
		a.end(ctx, tabID)
	}
}

// OnWindowFocusLost ends every tracked session.
func (a *Agent) OnWindowFocusLost(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn() {
		return
	}
	for _, session := range a.sessions.All() {
		a.end(ctx, session.TabID)
	}
}

// TakeBreak ends the session of tabID and reports whether one was tracked.
func (a *Agent) TakeBreak(ctx context.Context, tabID int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, tracked := a.sessions.Lookup(tabID); !tracked {
		return false
	}
	a.end(ctx, tabID)
	a.logger.Info().Int("tab", tabID).Msg("Break taken")
	return true
}

// CheckLimits returns an alert for every tracked session whose elapsed time
// has reached its limit. Each activity is reported once.
func (a *Agent) CheckLimits() []LimitAlert {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.signedIn() {
		return nil
	}

	now := a.clock.Now()
	var alerts []LimitAlert
	for _, session := range a.sessions.All() {
		if _, done := a.alerted[session.ActivityID]; done || session.Limit <= 0 {
			continue
		}
		elapsed := usage.DurationMinutes(session.StartTime, now)
		if elapsed < session.Limit {
			continue
		}
		a.alerted[session.ActivityID] = struct{}{}
		alerts = append(alerts, LimitAlert{
			TabID:          session.TabID,
			ActivityID:     session.ActivityID,
			Platform:       session.Platform,
			ElapsedMinutes: elapsed,
			LimitMinutes:   session.Limit,
			Title:          "Time Limit Exceeded!",
			Message:        fmt.Sprintf("You've exceeded your %d minute limit on %s", session.Limit, session.Platform.Title()),
		})
	}
	return alerts
}

// WatchLimits runs CheckLimits every interval until ctx is done and hands
// each alert to notify.
func (a *Agent) WatchLimits(ctx context.Context, interval time.Duration, notify func(LimitAlert)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, alert := range a.CheckLimits() {
				a.logger.Info().
					Int("tab", alert.TabID).
					Str("platform", alert.Platform.String()).
					Int("elapsed", alert.ElapsedMinutes).
					Int("limit", alert.LimitMinutes).
					Msg("Session limit reached")
				notify(alert)
			}
		}
	}
}

// SetToken replaces the API token.
func (a *Agent) SetToken(token string) {
	a.credentials.SetToken(token)
	a.logger.Info().Bool("signed_in", token != "").Msg("Token updated")
}

// Sessions returns the tracked tab sessions.
func (a *Agent) Sessions() []TabSession {
	return a.sessions.All()
}

// TodayUsage returns today's usage from the API.
func (a *Agent) TodayUsage(ctx context.Context) (map[platform.Platform]usage.PlatformUsage, error) {
	if !a.signedIn() {
		return nil, apperr.ErrUnauthorized
	}
	date := storage.DateKey(a.clock.Now(), a.location)
	return a.remote.DailyUsage(ctx, date)
}

func (a *Agent) signedIn() bool {
	return a.credentials.Token() != ""
}

// end drops the local session and closes it remotely.
func (a *Agent) end(ctx context.Context, tabID int) {
	session, ok := a.sessions.Dissociate(tabID)
	if !ok {
		return
	}
	delete(a.alerted, session.ActivityID)

	if _, err := a.remote.EndSession(ctx, session.ActivityID, a.clock.Now()); err != nil {
		event := a.logger.Warn()
		if errors.Is(err, apperr.ErrAlreadyClosed) {
			event = a.logger.Debug()
		}
		event.Err(err).
			Int("tab", tabID).
			Str("activity", session.ActivityID).
			Msg("Failed to end session")
		return
	}

	a.logger.Debug().
		Int("tab", tabID).
		Str("platform", session.Platform.String()).
		Str("activity", session.ActivityID).
		Msg("Session ended")
}

func (a *Agent) start(ctx context.Context, tabID int, p platform.Platform, url string) {
	limit := a.limitFor(ctx, p)

	activity, err := a.remote.StartSession(ctx, p, url)
	if err != nil {
		a.logger.Warn().Err(err).
			Int("tab", tabID).
			Str("platform", p.String()).
			Msg("Failed to start session")
		return
	}

	a.sessions.Associate(TabSession{
		TabID:      tabID,
		ActivityID: activity.ID,
		Platform:   p,
		StartTime:  activity.StartTime,
		Limit:      limit,
	})

	a.logger.Debug().
		Int("tab", tabID).
		Str("platform", p.String()).
		Str("activity", activity.ID).
		Int("limit", limit).
		Msg("Session started")
}

func (a *Agent) limitFor(ctx context.Context, p platform.Platform) int {
	user, err := a.remote.Profile(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Profile unavailable, using default limit")
		return DefaultLimitMinutes
	}
	if limit, ok := user.Limits[p]; ok && limit > 0 {
		return limit
	}
	return DefaultLimitMinutes
}
