package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
)

// maxRangeDays bounds weekly range queries.
const maxRangeDays = 366

// Aggregator computes per-platform usage totals from stored activities.
// Open activities contribute their stored duration, which is 0 until closed.
type Aggregator struct {
	activities storage.ActivityStore
}

// NewAggregator creates a new usage aggregator
func NewAggregator(activities storage.ActivityStore) *Aggregator {
	return &Aggregator{activities: activities}
}

// Daily returns totals per platform for date. Platforms without activities
// are absent from the result.
func (a *Aggregator) Daily(ctx context.Context, userID, date string) (map[platform.Platform]PlatformUsage, error) {
	if _, err := parseDate("date", date); err != nil {
		return nil, err
	}

	activities, err := a.activities.ListByDate(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return sumByPlatform(activities), nil
}

// Weekly returns per-platform totals for each date in the inclusive range,
// sorted by date then platform.
func (a *Aggregator) Weekly(ctx context.Context, userID, startDate, endDate string) ([]DayUsage, error) {
	start, err := parseDate("startDate", startDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", endDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Validation("endDate", "endDate must not be before startDate")
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		return nil, apperr.Validation("endDate", fmt.Sprintf("range must not exceed %d days", maxRangeDays))
	}

	activities, err := a.activities.ListByDateRange(ctx, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	type dayKey struct {
		date     string
		platform platform.Platform
	}
	totals := make(map[dayKey]int)
	for _, activity := range activities {
		totals[dayKey{date: activity.Date, platform: activity.Platform}] += activity.Duration
	}

	days := make([]DayUsage, 0, len(totals))
	for key, duration := range totals {
		days = append(days, DayUsage{Platform: key.platform, Date: key.date, Duration: duration})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].Date != days[j].Date {
			return days[i].Date < days[j].Date
		}
		return days[i].Platform < days[j].Platform
	})

	return days, nil
}

// Monthly returns totals per platform for a calendar month.
func (a *Aggregator) Monthly(ctx context.Context, userID string, year, month int) (map[platform.Platform]PlatformUsage, error) {
	if month < 1 || month > 12 {
		return nil, apperr.Validation("month", "month must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return nil, apperr.Validation("year", "year out of range")
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	activities, err := a.activities.ListByDateRange(ctx, userID, first.Format(storage.DateLayout), last.Format(storage.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return sumByPlatform(activities), nil
}

func sumByPlatform(activities []storage.Activity) map[platform.Platform]PlatformUsage {
	totals := make(map[platform.Platform]PlatformUsage)
	for _, activity := range activities {
		u := totals[activity.Platform]
		u.Duration += activity.Duration
		u.Sessions++
		totals[activity.Platform] = u
	}
	return totals
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperr.Validation(field, "date is required")
	}
	t, err := time.Parse(storage.DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation(field, "date must be YYYY-MM-DD")
	}
	return t, nil
}
