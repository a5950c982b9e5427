package usage

import (
	"context"
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/testutil"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestRetentionPurge(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()

	seedClosed(t, activities, "old", "user-1", platform.Facebook, testStart.AddDate(0, 0, -100), 10)
	seedClosed(t, activities, "recent", "user-1", platform.Facebook, testStart.AddDate(0, 0, -5), 10)

	rs := NewRetentionScheduler(activities, 90, 3, 0, clock.NewTestClock(testStart), zerolog.Nop())
	deleted, err := rs.Purge(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 purged activity, got %d", deleted)
	}
	if _, err := activities.Get(context.Background(), "recent"); err != nil {
		t.Errorf("expected recent activity to survive: %v", err)
	}
}

func TestRetentionDisabled(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()

	seedClosed(t, activities, "old", "user-1", platform.Facebook, testStart.AddDate(0, 0, -400), 10)

	rs := NewRetentionScheduler(activities, 0, 3, 0, clock.NewTestClock(testStart), zerolog.Nop())
	deleted, err := rs.Purge(context.Background())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected nothing purged with retention disabled, got %d", deleted)
	}
}

func TestRetentionNextRun(t *testing.T) {
	rs := NewRetentionScheduler(nil, 30, 3, 0, nil, zerolog.Nop())

	before := time.Date(2024, 5, 6, 1, 0, 0, 0, time.UTC)
	if got := rs.nextRun(before); !got.Equal(time.Date(2024, 5, 6, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("expected same-day run, got %v", got)
	}

	after := time.Date(2024, 5, 6, 3, 0, 0, 0, time.UTC)
	if got := rs.nextRun(after); !got.Equal(time.Date(2024, 5, 7, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("expected next-day run, got %v", got)
	}
}

func TestRetentionSchedulerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rs := NewRetentionScheduler(nil, 30, 3, 0, nil, zerolog.Nop())
	rs.Start()
	rs.Stop()
}
