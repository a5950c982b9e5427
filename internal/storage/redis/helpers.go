package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "st:"

func activityKey(id string) string {
	return fmt.Sprintf("%sactivity:%s", keyPrefix, id)
}

func timelineKey(userID string) string {
	return fmt.Sprintf("%sactivities:user:%s", keyPrefix, userID)
}

func dateSetKey(userID, date string) string {
	return fmt.Sprintf("%sactivities:user:%s:date:%s", keyPrefix, userID, date)
}

func openSlotKey(userID string, p platform.Platform, date string) string {
	return fmt.Sprintf("%sactivities:open:%s:%s:%s", keyPrefix, userID, p, date)
}

func openSetKey() string {
	return keyPrefix + "activities:open"
}

func userKey(id string) string {
	return fmt.Sprintf("%suser:%s", keyPrefix, id)
}

func notificationKey(id string) string {
	return fmt.Sprintf("%snotification:%s", keyPrefix, id)
}

func userNotificationsKey(userID string) string {
	return fmt.Sprintf("%snotifications:user:%s", keyPrefix, userID)
}

func recommendationKey(id string) string {
	return fmt.Sprintf("%srecommendation:%s", keyPrefix, id)
}

func userRecommendationsKey(userID string) string {
	return fmt.Sprintf("%srecommendations:user:%s", keyPrefix, userID)
}

func timeScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// scoreBound formats t as an inclusive sorted set bound.
func scoreBound(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// parseActivity converts a Redis hash to Activity
func parseActivity(data map[string]string) (*storage.Activity, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startTime, err := time.Parse(time.RFC3339Nano, data["start_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	duration, err := strconv.Atoi(data["duration"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	activity := &storage.Activity{
		ID:        data["id"],
		UserID:    data["user_id"],
		Platform:  platform.Platform(data["platform"]),
		StartTime: startTime,
		Duration:  duration,
		URL:       data["url"],
		Date:      data["date"],
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	if raw := data["end_time"]; raw != "" {
		endTime, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		activity.EndTime = &endTime
	}

	return activity, nil
}

// fetchActivities loads activity hashes for ids in one pipeline, skipping
// ids whose hash has disappeared.
func fetchActivities(ctx context.Context, client *redis.Client, ids []string) ([]storage.Activity, error) {
	if len(ids) == 0 {
		return []storage.Activity{}, nil
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, activityKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	activities := make([]storage.Activity, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		activity, err := parseActivity(data)
		if err == nil {
			activities = append(activities, *activity)
		}
	}

	return activities, nil
}

func getJSON[T any](ctx context.Context, client *redis.Client, key string) (*T, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &item, nil
}

// listJSON loads JSON values for keys in one MGET, skipping missing keys.
func listJSON[T any](ctx context.Context, client *redis.Client, keys []string) ([]T, error) {
	items := make([]T, 0, len(keys))
	if len(keys) == 0 {
		return items, nil
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", keys[i], err)
		}
		items = append(items, item)
	}

	return items, nil
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}
