package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goodtune/socialtracker/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketActivities        = "activities"
	bucketActivityOpen      = "activity_open"
	bucketUsers             = "users"
	bucketNotifications     = "notifications"
	bucketRecommendations   = "recommendations"
	bucketIndexes           = "indexes"
	bucketIndexActivityUser = "activity_user"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create bolt directory: %w", err)
	}
	return nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketActivities),
			[]byte(bucketActivityOpen),
			[]byte(bucketUsers),
			[]byte(bucketNotifications),
			[]byte(bucketRecommendations),
			[]byte(bucketIndexes),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		indexes := tx.Bucket([]byte(bucketIndexes))
		if indexes == nil {
			return fmt.Errorf("indexes bucket missing")
		}
		if _, err := indexes.CreateBucketIfNotExists([]byte(bucketIndexActivityUser)); err != nil {
			return fmt.Errorf("create activity indexes: %w", err)
		}

		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Activities returns the activity store.
func (s *Store) Activities() storage.ActivityStore { return &activityStore{db: s.db} }

// Users returns the user store.
func (s *Store) Users() storage.UserStore { return &userStore{db: s.db} }

// Notifications returns the notification store.
func (s *Store) Notifications() storage.NotificationStore { return &notificationStore{db: s.db} }

// Recommendations returns the recommendation store.
func (s *Store) Recommendations() storage.RecommendationStore {
	return &recommendationStore{db: s.db}
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

func decode[T any](data []byte) (T, error) {
	var item T
	err := unmarshal(data, &item)
	return item, err
}

// bucketFor returns the named top-level bucket, failing once ctx is done.
func bucketFor(ctx context.Context, tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket missing: %s", name)
	}
	return b, nil
}

// listBucket returns every value in bucket accepted by keep.
func listBucket[T any](ctx context.Context, db *bbolt.DB, bucket string, keep func(T) bool) ([]T, error) {
	items := make([]T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		b, err := bucketFor(ctx, tx, bucket)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := decode[T](v)
			if err != nil {
				return err
			}
			if keep == nil || keep(item) {
				items = append(items, item)
			}
		}
		return nil
	})
	return items, err
}

func getBucketValue[T any](ctx context.Context, db *bbolt.DB, bucket string, key string) (*T, error) {
	var item T
	err := db.View(func(tx *bbolt.Tx) error {
		b, err := bucketFor(ctx, tx, bucket)
		if err != nil {
			return err
		}
		value := b.Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}
		item, err = decode[T](value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func putBucketValue(ctx context.Context, db *bbolt.DB, bucket string, key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bbolt.Tx) error {
		b, err := bucketFor(ctx, tx, bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// updateBucketValue loads key, applies fn and writes the result back in one
// transaction.
func updateBucketValue[T any](ctx context.Context, db *bbolt.DB, bucket string, key string, fn func(*T) error) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b, err := bucketFor(ctx, tx, bucket)
		if err != nil {
			return err
		}
		value := b.Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}
		item, err := decode[T](value)
		if err != nil {
			return err
		}
		if err := fn(&item); err != nil {
			return err
		}
		data, err := marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// ensureIndexBucket creates the nested index bucket at path.
func ensureIndexBucket(tx *bbolt.Tx, path ...string) (*bbolt.Bucket, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty index bucket path")
	}
	current := tx.Bucket([]byte(bucketIndexes))
	if current == nil {
		return nil, fmt.Errorf("indexes bucket missing")
	}
	for _, part := range path {
		next, err := current.CreateBucketIfNotExists([]byte(part))
		if err != nil {
			return nil, fmt.Errorf("create index bucket %s: %w", part, err)
		}
		current = next
	}
	return current, nil
}

// indexBucket returns the nested index bucket at path, or nil.
func indexBucket(tx *bbolt.Tx, path ...string) *bbolt.Bucket {
	current := tx.Bucket([]byte(bucketIndexes))
	for _, part := range path {
		if current == nil {
			return nil
		}
		current = current.Bucket([]byte(part))
	}
	return current
}
