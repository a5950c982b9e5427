package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/testutil"
)

// seedClosed stores a closed activity with the given duration.
func seedClosed(t *testing.T, activities storage.ActivityStore, id, userID string, p platform.Platform, start time.Time, minutes int) {
	t.Helper()

	ctx := context.Background()
	activity := storage.Activity{
		ID:        id,
		UserID:    userID,
		Platform:  p,
		StartTime: start,
		Date:      storage.DateKey(start, time.UTC),
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := activities.CreateOpen(ctx, activity); err != nil {
		t.Fatalf("create activity %s: %v", id, err)
	}
	if _, err := activities.Close(ctx, id, start.Add(time.Duration(minutes)*time.Minute), minutes, start.Add(time.Duration(minutes)*time.Minute)); err != nil {
		t.Fatalf("close activity %s: %v", id, err)
	}
}

func TestDailyUsage(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()
	aggregator := NewAggregator(activities)

	seedClosed(t, activities, "fb-1", "user-1", platform.Facebook, testStart, 10)
	seedClosed(t, activities, "fb-2", "user-1", platform.Facebook, testStart.Add(time.Hour), 20)
	seedClosed(t, activities, "fb-3", "user-1", platform.Facebook, testStart.Add(2*time.Hour), 5)
	seedClosed(t, activities, "tw-1", "user-1", platform.Twitter, testStart, 8)
	seedClosed(t, activities, "other-day", "user-1", platform.Twitter, testStart.AddDate(0, 0, 1), 30)
	seedClosed(t, activities, "other-user", "user-2", platform.Facebook, testStart, 45)

	usage, err := aggregator.Daily(context.Background(), "user-1", "2024-05-06")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}

	if len(usage) != 2 {
		t.Fatalf("expected 2 platforms, got %v", usage)
	}
	if got := usage[platform.Facebook]; got.Duration != 35 || got.Sessions != 3 {
		t.Errorf("expected facebook {35 3}, got %+v", got)
	}
	if got := usage[platform.Twitter]; got.Duration != 8 || got.Sessions != 1 {
		t.Errorf("expected twitter {8 1}, got %+v", got)
	}
	if _, ok := usage[platform.YouTube]; ok {
		t.Error("platforms without sessions must be absent")
	}
}

func TestDailyUsageCountsOpenSessionsWithoutDuration(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()
	aggregator := NewAggregator(activities)

	seedClosed(t, activities, "fb-1", "user-1", platform.Facebook, testStart, 10)
	open := storage.Activity{
		ID:        "fb-open",
		UserID:    "user-1",
		Platform:  platform.Facebook,
		StartTime: testStart.Add(time.Hour),
		Date:      "2024-05-06",
		CreatedAt: testStart,
		UpdatedAt: testStart,
	}
	if err := activities.CreateOpen(context.Background(), open); err != nil {
		t.Fatalf("create open: %v", err)
	}

	usage, err := aggregator.Daily(context.Background(), "user-1", "2024-05-06")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if got := usage[platform.Facebook]; got.Duration != 10 || got.Sessions != 2 {
		t.Errorf("expected facebook {10 2}, got %+v", got)
	}
}

func TestWeeklyUsageSorted(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()
	aggregator := NewAggregator(activities)

	seedClosed(t, activities, "a", "user-1", platform.YouTube, testStart.AddDate(0, 0, 2), 15)
	seedClosed(t, activities, "b", "user-1", platform.Facebook, testStart.AddDate(0, 0, 2), 5)
	seedClosed(t, activities, "c", "user-1", platform.Facebook, testStart, 7)
	seedClosed(t, activities, "d", "user-1", platform.Facebook, testStart.Add(time.Hour), 3)
	seedClosed(t, activities, "outside", "user-1", platform.Facebook, testStart.AddDate(0, 0, 9), 99)

	days, err := aggregator.Weekly(context.Background(), "user-1", "2024-05-06", "2024-05-12")
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}

	want := []DayUsage{
		{Platform: platform.Facebook, Date: "2024-05-06", Duration: 10},
		{Platform: platform.Facebook, Date: "2024-05-08", Duration: 5},
		{Platform: platform.YouTube, Date: "2024-05-08", Duration: 15},
	}
	if len(days) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], days[i])
		}
	}
}

func TestMonthlyUsage(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	activities := store.Activities()
	aggregator := NewAggregator(activities)

	seedClosed(t, activities, "may-1", "user-1", platform.Instagram, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), 12)
	seedClosed(t, activities, "may-31", "user-1", platform.Instagram, time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC), 8)
	seedClosed(t, activities, "june", "user-1", platform.Instagram, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), 50)

	usage, err := aggregator.Monthly(context.Background(), "user-1", 2024, 5)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if got := usage[platform.Instagram]; got.Duration != 20 || got.Sessions != 2 {
		t.Errorf("expected instagram {20 2}, got %+v", got)
	}
}

func TestAggregatorValidation(t *testing.T) {
	store, _ := testutil.NewRedisStore(t)
	aggregator := NewAggregator(store.Activities())
	ctx := context.Background()

	if _, err := aggregator.Daily(ctx, "user-1", "2024-13-01"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad date, got %v", err)
	}
	if _, err := aggregator.Weekly(ctx, "user-1", "2024-05-10", "2024-05-01"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for reversed range, got %v", err)
	}
	if _, err := aggregator.Weekly(ctx, "user-1", "2020-01-01", "2024-01-01"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for oversized range, got %v", err)
	}
	if _, err := aggregator.Monthly(ctx, "user-1", 2024, 13); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad month, got %v", err)
	}
}
