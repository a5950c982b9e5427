package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var agentStart = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type endCall struct {
	id  string
	end time.Time
}

type fakeRemote struct {
	mu       sync.Mutex
	clock    clock.Clock
	nextID   int
	starts   []platform.Platform
	ends     []endCall
	limits   map[platform.Platform]int
	daily    map[platform.Platform]usage.PlatformUsage
	dates    []string
	startErr error
	endErr   error
	profErr  error
}

func newFakeRemote(clk clock.Clock) *fakeRemote {
	return &fakeRemote{clock: clk, limits: map[platform.Platform]int{}}
}

func (f *fakeRemote) StartSession(_ context.Context, p platform.Platform, url string) (*storage.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, p)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextID++
	return &storage.Activity{
		ID:        fmt.Sprintf("act-%d", f.nextID),
		Platform:  p,
		URL:       url,
		StartTime: f.clock.Now(),
	}, nil
}

func (f *fakeRemote) EndSession(_ context.Context, id string, endTime time.Time) (*storage.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, endCall{id: id, end: endTime})
	if f.endErr != nil {
		return nil, f.endErr
	}
	return &storage.Activity{ID: id, EndTime: &endTime}, nil
}

func (f *fakeRemote) Profile(context.Context) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profErr != nil {
		return nil, f.profErr
	}
	return &storage.User{ID: "user-1", Limits: f.limits}, nil
}

func (f *fakeRemote) DailyUsage(_ context.Context, date string) (map[platform.Platform]usage.PlatformUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return f.daily, nil
}

func (f *fakeRemote) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), len(f.ends)
}

func newTestAgent(t *testing.T, token string) (*Agent, *fakeRemote, *clock.TestClock) {
	t.Helper()

	clk := clock.NewTestClock(agentStart)
	remote := newFakeRemote(clk)
	classifier, err := platform.NewClassifier(16)
	require.NoError(t, err)

	a := New(remote, classifier, NewCredentials(token), clk, time.UTC, zerolog.Nop())
	return a, remote, clk
}

func TestAgentStartsSessionForPlatform(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	remote.limits[platform.Facebook] = 45
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://www.facebook.com/feed")

	sessions := a.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].TabID)
	assert.Equal(t, platform.Facebook, sessions[0].Platform)
	assert.Equal(t, "act-1", sessions[0].ActivityID)
	assert.Equal(t, 45, sessions[0].Limit)
	assert.Equal(t, agentStart, sessions[0].StartTime)
}

func TestAgentIgnoresUntrackedURL(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")

	a.OnTabURLChange(context.Background(), 1, "https://example.com/")

	starts, ends := remote.calls()
	assert.Zero(t, starts)
	assert.Zero(t, ends)
	assert.Empty(t, a.Sessions())
}

func TestAgentSamePlatformContinues(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://twitter.com/home")
	clk.Advance(5 * time.Minute)
	a.OnTabURLChange(ctx, 1, "https://x.com/someone")

	starts, ends := remote.calls()
	assert.Equal(t, 1, starts)
	assert.Zero(t, ends)
	require.Len(t, a.Sessions(), 1)
	assert.Equal(t, "act-1", a.Sessions()[0].ActivityID)
}

func TestAgentPlatformSwitch(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://facebook.com/")
	clk.Advance(10 * time.Minute)
	a.OnTabURLChange(ctx, 1, "https://www.youtube.com/watch?v=1")

	require.Len(t, remote.ends, 1)
	assert.Equal(t, "act-1", remote.ends[0].id)
	assert.Equal(t, agentStart.Add(10*time.Minute), remote.ends[0].end)

	sessions := a.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, platform.YouTube, sessions[0].Platform)
	assert.Equal(t, "act-2", sessions[0].ActivityID)
	assert.Equal(t, DefaultLimitMinutes, sessions[0].Limit)
}

func TestAgentLeavingPlatformEndsSession(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://instagram.com/")
	a.OnTabURLChange(ctx, 1, "https://golang.org/")

	starts, ends := remote.calls()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Empty(t, a.Sessions())
}

func TestAgentWithoutTokenMakesNoCalls(t *testing.T) {
	a, remote, _ := newTestAgent(t, "")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://facebook.com/")
	a.OnTabActivated(ctx, 2, "https://tiktok.com/")
	a.OnTabClosed(ctx, 1)
	a.OnWindowFocusLost(ctx)

	starts, ends := remote.calls()
	assert.Zero(t, starts)
	assert.Zero(t, ends)
	assert.Empty(t, a.Sessions())

	_, err := a.TodayUsage(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestAgentEndDropsLocalStateOnRemoteError(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://linkedin.com/feed")
	remote.endErr = fmt.Errorf("api: 409: %w", apperr.ErrAlreadyClosed)
	a.OnTabClosed(ctx, 1)

	_, ends := remote.calls()
	assert.Equal(t, 1, ends)
	assert.Empty(t, a.Sessions())
}

func TestAgentStartErrorLeavesTabUntracked(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	remote.startErr = apperr.Upstream("api", errors.New("connection refused"))

	a.OnTabURLChange(context.Background(), 1, "https://facebook.com/")

	starts, _ := remote.calls()
	assert.Equal(t, 1, starts)
	assert.Empty(t, a.Sessions())
}

func TestAgentProfileErrorUsesDefaultLimit(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	remote.profErr = errors.New("boom")

	a.OnTabURLChange(context.Background(), 3, "https://tiktok.com/@someone")

	require.Len(t, a.Sessions(), 1)
	assert.Equal(t, DefaultLimitMinutes, a.Sessions()[0].Limit)
}

func TestAgentFocusLostEndsAll(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://facebook.com/")
	a.OnTabURLChange(ctx, 2, "https://youtube.com/")
	a.OnTabURLChange(ctx, 3, "https://example.org/")
	require.Len(t, a.Sessions(), 2)

	a.OnWindowFocusLost(ctx)
	assert.Empty(t, a.Sessions())
	_, ends := remote.calls()
	assert.Equal(t, 2, ends)

	a.OnWindowFocusGained(ctx, 2, "https://youtube.com/")
	require.Len(t, a.Sessions(), 1)
	assert.Equal(t, 2, a.Sessions()[0].TabID)
}

func TestAgentClosingUntrackedTab(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")

	a.OnTabClosed(context.Background(), 42)

	_, ends := remote.calls()
	assert.Zero(t, ends)
}

func TestAgentTodayUsageUsesLocation(t *testing.T) {
	clk := clock.NewTestClock(time.Date(2024, 5, 6, 23, 30, 0, 0, time.UTC))
	remote := newFakeRemote(clk)
	remote.daily = map[platform.Platform]usage.PlatformUsage{platform.Facebook: {Duration: 12, Sessions: 2}}
	classifier, err := platform.NewClassifier(16)
	require.NoError(t, err)

	loc := time.FixedZone("UTC+2", 2*60*60)
	a := New(remote, classifier, NewCredentials("token"), clk, loc, zerolog.Nop())

	daily, err := a.TodayUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, daily[platform.Facebook].Duration)
	assert.Equal(t, []string{"2024-05-07"}, remote.dates)
}

func TestAgentConcurrentEvents(t *testing.T) {
	a, _, _ := newTestAgent(t, "token")
	ctx := context.Background()

	urls := []string{"https://facebook.com/", "https://youtube.com/", "https://example.com/"}
	var wg sync.WaitGroup
	for tab := 0; tab < 8; tab++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				a.OnTabURLChange(ctx, tab, urls[(tab+i)%len(urls)])
			}
			a.OnTabClosed(ctx, tab)
		}(tab)
	}
	wg.Wait()

	assert.Empty(t, a.Sessions())
}

func TestAgentCheckLimits(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.Facebook] = 30
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://facebook.com/")
	a.OnTabURLChange(ctx, 2, "https://youtube.com/")

	clk.Advance(29*time.Minute + 30*time.Second)
	assert.Empty(t, a.CheckLimits(), "29.5 minutes rounds down to 29")

	clk.Advance(time.Second)
	alerts := a.CheckLimits()
	require.Len(t, alerts, 1)
	assert.Equal(t, LimitAlert{
		TabID:          1,
		ActivityID:     "act-1",
		Platform:       platform.Facebook,
		ElapsedMinutes: 30,
		LimitMinutes:   30,
		Title:          "Time Limit Exceeded!",
		Message:        "You've exceeded your 30 minute limit on Facebook",
	}, alerts[0])

	clk.Advance(5 * time.Minute)
	assert.Empty(t, a.CheckLimits(), "an activity is reported once")

	// youtube has the default limit
	clk.Advance(25 * time.Minute)
	alerts = a.CheckLimits()
	require.Len(t, alerts, 1)
	assert.Equal(t, platform.YouTube, alerts[0].Platform)
	assert.Equal(t, DefaultLimitMinutes, alerts[0].LimitMinutes)
}

func TestAgentCheckLimitsForgetsEndedActivities(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.Twitter] = 5
	ctx := context.Background()

	a.OnTabURLChange(ctx, 1, "https://x.com/home")
	clk.Advance(5 * time.Minute)
	require.Len(t, a.CheckLimits(), 1)

	a.OnTabClosed(ctx, 1)
	assert.Empty(t, a.alerted)

	a.OnTabURLChange(ctx, 1, "https://twitter.com/")
	assert.Empty(t, a.CheckLimits())
	clk.Advance(5 * time.Minute)
	alerts := a.CheckLimits()
	require.Len(t, alerts, 1)
	assert.Equal(t, "act-2", alerts[0].ActivityID)
}

func TestAgentCheckLimitsWithoutToken(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.Facebook] = 1

	a.OnTabURLChange(context.Background(), 1, "https://facebook.com/")
	a.SetToken("")
	clk.Advance(time.Hour)

	assert.Empty(t, a.CheckLimits())
}

func TestAgentWatchLimits(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.Instagram] = 10

	a.OnTabURLChange(context.Background(), 3, "https://www.instagram.com/")
	clk.Advance(12 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	alerts := make(chan LimitAlert, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.WatchLimits(ctx, 5*time.Millisecond, func(alert LimitAlert) { alerts <- alert })
	}()

	select {
	case alert := <-alerts:
		assert.Equal(t, 3, alert.TabID)
		assert.Equal(t, 12, alert.ElapsedMinutes)
	case <-time.After(2 * time.Second):
		t.Fatal("no limit alert")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchLimits did not return after cancel")
	}
	assert.Empty(t, alerts)
}

func TestAgentTakeBreak(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	ctx := context.Background()

	a.OnTabURLChange(ctx, 7, "https://www.tiktok.com/@someone")
	clk.Advance(10 * time.Minute)

	assert.True(t, a.TakeBreak(ctx, 7))
	assert.Empty(t, a.Sessions())

	remote.mu.Lock()
	require.Len(t, remote.ends, 1)
	assert.Equal(t, "act-1", remote.ends[0].id)
	assert.True(t, remote.ends[0].end.Equal(agentStart.Add(10*time.Minute)))
	remote.mu.Unlock()

	assert.False(t, a.TakeBreak(ctx, 7))
	_, ends := remote.calls()
	assert.Equal(t, 1, ends)
}
