package redis

import (
	"context"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

type recommendationStore struct {
	client *redis.Client
}

// Create stores a recommendation and indexes it under its user
func (s *recommendationStore) Create(ctx context.Context, rec storage.Recommendation) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recommendationKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, userRecommendationsKey(rec.UserID), redis.Z{
		Score:  timeScore(rec.CreatedAt),
		Member: rec.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// ListUnread returns up to limit unread recommendations, newest first
func (s *recommendationStore) ListUnread(ctx context.Context, userID string, limit int) ([]storage.Recommendation, error) {
	all, err := s.list(ctx, userID, "-inf")
	if err != nil {
		return nil, err
	}

	unread := make([]storage.Recommendation, 0)
	for _, rec := range all {
		if rec.Read {
			continue
		}
		unread = append(unread, rec)
		if limit > 0 && len(unread) == limit {
			break
		}
	}
	return unread, nil
}

// HasRecent reports whether a recommendation with the same type and platform
// was created at or after since
func (s *recommendationStore) HasRecent(ctx context.Context, userID string, recType storage.RecommendationType, p platform.Platform, since time.Time) (bool, error) {
	recent, err := s.list(ctx, userID, scoreBound(since))
	if err != nil {
		return false, err
	}
	for _, rec := range recent {
		if rec.Type == recType && rec.Platform == p {
			return true, nil
		}
	}
	return false, nil
}

// MarkRead marks one of the user's recommendations as read
func (s *recommendationStore) MarkRead(ctx context.Context, userID, id string) error {
	rec, err := getJSON[storage.Recommendation](ctx, s.client, recommendationKey(id))
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return storage.ErrNotFound
	}
	if rec.Read {
		return nil
	}

	rec.Read = true
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, recommendationKey(id), data, 0).Err()
}

func (s *recommendationStore) list(ctx context.Context, userID, min string) ([]storage.Recommendation, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, userRecommendationsKey(userID), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recommendationKey(id)
	}
	return listJSON[storage.Recommendation](ctx, s.client, keys)
}
