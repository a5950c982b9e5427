package bolt

import (
	"context"
	"sort"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"go.etcd.io/bbolt"
)

type notificationStore struct {
	db *bbolt.DB
}

func (s *notificationStore) Create(ctx context.Context, notification storage.Notification) error {
	return putBucketValue(ctx, s.db, bucketNotifications, notification.ID, notification)
}

func (s *notificationStore) ListUnread(ctx context.Context, userID string) ([]storage.Notification, error) {
	unread, err := listBucket(ctx, s.db, bucketNotifications, func(n storage.Notification) bool {
		return n.UserID == userID && !n.Read
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(unread, func(i, j int) bool {
		return unread[i].CreatedAt.After(unread[j].CreatedAt)
	})
	return unread, nil
}

func (s *notificationStore) HasRecent(ctx context.Context, userID string, p platform.Platform, since time.Time) (bool, error) {
	recent, err := listBucket(ctx, s.db, bucketNotifications, func(n storage.Notification) bool {
		return n.UserID == userID && n.Platform == p && !n.CreatedAt.Before(since)
	})
	if err != nil {
		return false, err
	}
	return len(recent) > 0, nil
}

func (s *notificationStore) MarkRead(ctx context.Context, userID, id string) error {
	return updateBucketValue(ctx, s.db, bucketNotifications, id, func(n *storage.Notification) error {
		if n.UserID != userID {
			return storage.ErrNotFound
		}
		n.Read = true
		return nil
	})
}

func (s *notificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	marked := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketNotifications))

		updates := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			var n storage.Notification
			if err := unmarshal(v, &n); err != nil {
				return err
			}
			if n.UserID != userID || n.Read {
				return nil
			}
			n.Read = true
			data, err := marshal(n)
			if err != nil {
				return err
			}
			updates[string(k)] = data
			return nil
		})
		if err != nil {
			return err
		}

		for key, data := range updates {
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		marked = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (s *notificationStore) Delete(ctx context.Context, userID, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketNotifications))
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var n storage.Notification
		if err := unmarshal(value, &n); err != nil {
			return err
		}
		if n.UserID != userID {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
