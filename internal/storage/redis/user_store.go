package redis

import (
	"context"

	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

type userStore struct {
	client *redis.Client
}

// Get retrieves a user profile by ID
func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	return getJSON[storage.User](ctx, s.client, userKey(id))
}

// Upsert creates or replaces a user profile
func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	data, err := marshal(user)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, userKey(user.ID), data, 0).Err()
}
