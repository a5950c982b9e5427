package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"go.etcd.io/bbolt"
)

type recommendationStore struct {
	db *bbolt.DB
}

func (s *recommendationStore) Create(ctx context.Context, rec storage.Recommendation) error {
	return putBucketValue(ctx, s.db, bucketRecommendations, rec.ID, rec)
}

func (s *recommendationStore) ListUnread(ctx context.Context, userID string, limit int) ([]storage.Recommendation, error) {
	unread, err := listBucket(ctx, s.db, bucketRecommendations, func(r storage.Recommendation) bool {
		return r.UserID == userID && !r.Read
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(unread, func(i, j int) bool {
		return unread[i].CreatedAt.After(unread[j].CreatedAt)
	})
	if limit > 0 && len(unread) > limit {
		unread = unread[:limit]
	}
	return unread, nil
}

func (s *recommendationStore) HasRecent(ctx context.Context, userID string, recType storage.RecommendationType, p platform.Platform, since time.Time) (bool, error) {
	recent, err := listBucket(ctx, s.db, bucketRecommendations, func(r storage.Recommendation) bool {
		return r.UserID == userID && r.Type == recType && r.Platform == p && !r.CreatedAt.Before(since)
	})
	if err != nil {
		return false, err
	}
	return len(recent) > 0, nil
}

func (s *recommendationStore) MarkRead(ctx context.Context, userID, id string) error {
	return updateBucketValue(ctx, s.db, bucketRecommendations, id, func(r *storage.Recommendation) error {
		if r.UserID != userID {
			return storage.ErrNotFound
		}
		r.Read = true
		return nil
	})
}
