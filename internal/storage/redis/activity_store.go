package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

type activityStore struct {
	client *redis.Client
	create *redis.Script
	close  *redis.Script
}

func newActivityStore(client *redis.Client) *activityStore {
	return &activityStore{
		client: client,
		create: redis.NewScript(createActivityScript),
		close:  redis.NewScript(closeActivityScript),
	}
}

// CreateOpen persists a new open activity, failing with
// storage.ErrOpenSessionExists when its open slot is taken.
func (s *activityStore) CreateOpen(ctx context.Context, activity storage.Activity) error {
	keys := []string{
		activityKey(activity.ID),
		openSlotKey(activity.UserID, activity.Platform, activity.Date),
		dateSetKey(activity.UserID, activity.Date),
		timelineKey(activity.UserID),
		openSetKey(),
	}
	args := []interface{}{
		activity.ID,
		activity.UserID,
		string(activity.Platform),
		activity.StartTime.Format(time.RFC3339Nano),
		activity.URL,
		activity.Date,
		activity.CreatedAt.Format(time.RFC3339Nano),
		timeScore(activity.StartTime),
	}

	result, err := s.create.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return err
	}
	if result == "EXISTS" {
		return storage.ErrOpenSessionExists
	}
	return nil
}

// Get retrieves an activity by ID
func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	data, err := s.client.HGetAll(ctx, activityKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseActivity(data)
}

// FindOpen returns the activity holding the open slot for (user, platform, date)
func (s *activityStore) FindOpen(ctx context.Context, userID string, p platform.Platform, date string) (*storage.Activity, error) {
	id, err := s.client.Get(ctx, openSlotKey(userID, p, date)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Close sets the end time and duration of an open activity
func (s *activityStore) Close(ctx context.Context, id string, endTime time.Time, duration int, updatedAt time.Time) (*storage.Activity, error) {
	// The slot key is derived from immutable fields
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	keys := []string{
		activityKey(id),
		openSetKey(),
		openSlotKey(current.UserID, current.Platform, current.Date),
	}
	args := []interface{}{
		id,
		endTime.Format(time.RFC3339Nano),
		duration,
		updatedAt.UTC().Format(time.RFC3339Nano),
	}

	result, err := s.close.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return nil, err
	}

	switch result {
	case "MISSING":
		return nil, storage.ErrNotFound
	case "CLOSED":
		return nil, storage.ErrAlreadyClosed
	}

	return s.Get(ctx, id)
}

// ListByDate returns a user's activities for one date
func (s *activityStore) ListByDate(ctx context.Context, userID, date string) ([]storage.Activity, error) {
	ids, err := s.client.SMembers(ctx, dateSetKey(userID, date)).Result()
	if err != nil {
		return nil, err
	}

	activities, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return nil, err
	}
	sortByStart(activities, false)
	return activities, nil
}

// ListByDateRange returns a user's activities for an inclusive date range
func (s *activityStore) ListByDateRange(ctx context.Context, userID, from, to string) ([]storage.Activity, error) {
	start, err := time.Parse(storage.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date: %w", err)
	}
	end, err := time.Parse(storage.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date: %w", err)
	}
	if end.Before(start) {
		return []storage.Activity{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, 0)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		cmds = append(cmds, pipe.SMembers(ctx, dateSetKey(userID, day.Format(storage.DateLayout))))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	ids := make([]string, 0)
	for _, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil {
			continue
		}
		ids = append(ids, members...)
	}

	activities, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return nil, err
	}
	sortByStart(activities, false)
	return activities, nil
}

// Query returns one page of a user's history, newest first, and the total
// number of matching activities.
func (s *activityStore) Query(ctx context.Context, filter storage.ActivityFilter) ([]storage.Activity, int, error) {
	if filter.Platform == "" && filter.Date == "" {
		return s.queryTimeline(ctx, filter)
	}

	var ids []string
	var err error
	if filter.Date != "" {
		ids, err = s.client.SMembers(ctx, dateSetKey(filter.UserID, filter.Date)).Result()
	} else {
		ids, err = s.client.ZRevRange(ctx, timelineKey(filter.UserID), 0, -1).Result()
	}
	if err != nil {
		return nil, 0, err
	}

	all, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]storage.Activity, 0, len(all))
	for _, activity := range all {
		if filter.Platform != "" && activity.Platform != filter.Platform {
			continue
		}
		matched = append(matched, activity)
	}
	sortByStart(matched, true)

	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (s *activityStore) queryTimeline(ctx context.Context, filter storage.ActivityFilter) ([]storage.Activity, int, error) {
	key := timelineKey(filter.UserID)

	total, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}

	stop := int64(-1)
	if filter.Limit > 0 {
		stop = int64(filter.Offset + filter.Limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, key, int64(filter.Offset), stop).Result()
	if err != nil {
		return nil, 0, err
	}

	activities, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return nil, 0, err
	}
	sortByStart(activities, true)
	return activities, int(total), nil
}

// ListOpen returns every open activity across all users
func (s *activityStore) ListOpen(ctx context.Context) ([]storage.Activity, error) {
	ids, err := s.client.SMembers(ctx, openSetKey()).Result()
	if err != nil {
		return nil, err
	}

	activities, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return nil, err
	}

	open := activities[:0]
	for _, activity := range activities {
		if activity.Open() {
			open = append(open, activity)
		}
	}
	return open, nil
}

// DeleteByUser removes every activity belonging to a user
func (s *activityStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.client.ZRange(ctx, timelineKey(userID), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	activities, err := fetchActivities(ctx, s.client, ids)
	if err != nil {
		return 0, err
	}

	pipe := s.client.TxPipeline()
	for _, activity := range activities {
		pipe.Del(ctx, activityKey(activity.ID))
		pipe.Del(ctx, dateSetKey(userID, activity.Date))
		pipe.SRem(ctx, openSetKey(), activity.ID)
		if activity.Open() {
			pipe.Del(ctx, openSlotKey(userID, activity.Platform, activity.Date))
		}
	}
	pipe.Del(ctx, timelineKey(userID))

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return len(activities), nil
}

// DeleteClosedBefore deletes closed activities that started before cutoff
func (s *activityStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var cursor uint64
	var deletedCount int

	for {
		var keys []string
		var err error
		keys, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"activity:*", 100).Result()
		if err != nil {
			return deletedCount, err
		}

		if len(keys) > 0 {
			pipe := s.client.Pipeline()
			cmds := make([]*redis.MapStringStringCmd, len(keys))
			for i, key := range keys {
				cmds[i] = pipe.HGetAll(ctx, key)
			}

			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				return deletedCount, err
			}

			cleanup := s.client.Pipeline()
			pending := 0
			for _, cmd := range cmds {
				data, err := cmd.Result()
				if err != nil || len(data) == 0 {
					continue
				}

				activity, err := parseActivity(data)
				if err != nil || activity.Open() {
					continue
				}
				if !activity.StartTime.Before(cutoff) {
					continue
				}

				cleanup.Del(ctx, activityKey(activity.ID))
				cleanup.SRem(ctx, dateSetKey(activity.UserID, activity.Date), activity.ID)
				cleanup.ZRem(ctx, timelineKey(activity.UserID), activity.ID)
				pending++
			}

			if pending > 0 {
				if _, err := cleanup.Exec(ctx); err != nil {
					return deletedCount, err
				}
				deletedCount += pending
			}
		}

		if cursor == 0 {
			break
		}
	}

	return deletedCount, nil
}

func sortByStart(activities []storage.Activity, newestFirst bool) {
	sort.SliceStable(activities, func(i, j int) bool {
		a, b := activities[i].StartTime, activities[j].StartTime
		if a.Equal(b) {
			return activities[i].ID < activities[j].ID
		}
		if newestFirst {
			return a.After(b)
		}
		return a.Before(b)
	})
}

func paginate(activities []storage.Activity, offset, limit int) []storage.Activity {
	if offset >= len(activities) {
		return []storage.Activity{}
	}
	end := len(activities)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return activities[offset:end]
}
