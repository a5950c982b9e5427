package bolt

import (
	"context"

	"github.com/goodtune/socialtracker/internal/storage"
	"go.etcd.io/bbolt"
)

type userStore struct {
	db *bbolt.DB
}

func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	return getBucketValue[storage.User](ctx, s.db, bucketUsers, id)
}

func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	return putBucketValue(ctx, s.db, bucketUsers, user.ID, user)
}
