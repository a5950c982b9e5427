package redis

import (
	"context"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

type notificationStore struct {
	client *redis.Client
}

// Create stores a notification and indexes it under its user
func (s *notificationStore) Create(ctx context.Context, notification storage.Notification) error {
	data, err := marshal(notification)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, notificationKey(notification.ID), data, 0)
	pipe.ZAdd(ctx, userNotificationsKey(notification.UserID), redis.Z{
		Score:  timeScore(notification.CreatedAt),
		Member: notification.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// ListUnread returns a user's unread notifications, newest first
func (s *notificationStore) ListUnread(ctx context.Context, userID string) ([]storage.Notification, error) {
	all, err := s.list(ctx, userID, "-inf")
	if err != nil {
		return nil, err
	}

	unread := make([]storage.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread, nil
}

// HasRecent reports whether a notification for (user, platform) was created at or after since
func (s *notificationStore) HasRecent(ctx context.Context, userID string, p platform.Platform, since time.Time) (bool, error) {
	recent, err := s.list(ctx, userID, scoreBound(since))
	if err != nil {
		return false, err
	}
	for _, n := range recent {
		if n.Platform == p {
			return true, nil
		}
	}
	return false, nil
}

// MarkRead marks one of the user's notifications as read
func (s *notificationStore) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	n.Read = true
	return s.save(ctx, *n)
}

// MarkAllRead marks every unread notification of the user as read
func (s *notificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	unread, err := s.ListUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	pipe := s.client.Pipeline()
	for _, n := range unread {
		n.Read = true
		data, err := marshal(n)
		if err != nil {
			return 0, err
		}
		pipe.Set(ctx, notificationKey(n.ID), data, 0)
	}
	if len(unread) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
	}
	return len(unread), nil
}

// Delete removes one of the user's notifications
func (s *notificationStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, notificationKey(id))
	pipe.ZRem(ctx, userNotificationsKey(userID), id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *notificationStore) list(ctx context.Context, userID, min string) ([]storage.Notification, error) {
	ids, err := s.client.ZRevRangeByScore(ctx, userNotificationsKey(userID), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = notificationKey(id)
	}
	return listJSON[storage.Notification](ctx, s.client, keys)
}

// owned returns the notification if it exists and belongs to userID
func (s *notificationStore) owned(ctx context.Context, userID, id string) (*storage.Notification, error) {
	n, err := getJSON[storage.Notification](ctx, s.client, notificationKey(id))
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return n, nil
}

func (s *notificationStore) save(ctx context.Context, n storage.Notification) error {
	data, err := marshal(n)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, notificationKey(n.ID), data, 0).Err()
}
