package bolt

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"go.etcd.io/bbolt"
)

type activityStore struct {
	db *bbolt.DB
}

func openSlotKey(userID string, p platform.Platform, date string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", userID, p, date))
}

// userIndexKey sorts a user's activities by date then start time.
func userIndexKey(activity storage.Activity) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", activity.Date, activity.StartTime.UnixNano(), activity.ID))
}

func (s *activityStore) CreateOpen(ctx context.Context, activity storage.Activity) error {
	data, err := marshal(activity)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slots := tx.Bucket([]byte(bucketActivityOpen))
		slot := openSlotKey(activity.UserID, activity.Platform, activity.Date)
		if slots.Get(slot) != nil {
			return storage.ErrOpenSessionExists
		}

		if err := tx.Bucket([]byte(bucketActivities)).Put([]byte(activity.ID), data); err != nil {
			return err
		}
		if err := slots.Put(slot, []byte(activity.ID)); err != nil {
			return err
		}

		index, err := ensureIndexBucket(tx, bucketIndexActivityUser, activity.UserID)
		if err != nil {
			return err
		}
		return index.Put(userIndexKey(activity), []byte(activity.ID))
	})
}

func (s *activityStore) Get(ctx context.Context, id string) (*storage.Activity, error) {
	return getBucketValue[storage.Activity](ctx, s.db, bucketActivities, id)
}

func (s *activityStore) FindOpen(ctx context.Context, userID string, p platform.Platform, date string) (*storage.Activity, error) {
	var activity *storage.Activity
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		id := tx.Bucket([]byte(bucketActivityOpen)).Get(openSlotKey(userID, p, date))
		if id == nil {
			return storage.ErrNotFound
		}
		value := tx.Bucket([]byte(bucketActivities)).Get(id)
		if value == nil {
			return storage.ErrNotFound
		}
		var result storage.Activity
		if err := unmarshal(value, &result); err != nil {
			return err
		}
		activity = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *activityStore) Close(ctx context.Context, id string, endTime time.Time, duration int, updatedAt time.Time) (*storage.Activity, error) {
	var closed storage.Activity
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		activities := tx.Bucket([]byte(bucketActivities))
		value := activities.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		if err := unmarshal(value, &closed); err != nil {
			return err
		}
		if !closed.Open() {
			return storage.ErrAlreadyClosed
		}

		end := endTime
		closed.EndTime = &end
		closed.Duration = duration
		closed.UpdatedAt = updatedAt.UTC()

		data, err := marshal(closed)
		if err != nil {
			return err
		}
		if err := activities.Put([]byte(id), data); err != nil {
			return err
		}

		slots := tx.Bucket([]byte(bucketActivityOpen))
		slot := openSlotKey(closed.UserID, closed.Platform, closed.Date)
		if bytes.Equal(slots.Get(slot), []byte(id)) {
			return slots.Delete(slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &closed, nil
}

func (s *activityStore) ListByDate(ctx context.Context, userID, date string) ([]storage.Activity, error) {
	return s.ListByDateRange(ctx, userID, date, date)
}

func (s *activityStore) ListByDateRange(ctx context.Context, userID, from, to string) ([]storage.Activity, error) {
	activities := make([]storage.Activity, 0)
	if to < from {
		return activities, nil
	}

	// Index keys start with the date, so one cursor walk covers the range
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := indexBucket(tx, bucketIndexActivityUser, userID)
		if index == nil {
			return nil
		}
		bucket := tx.Bucket([]byte(bucketActivities))

		c := index.Cursor()
		for k, v := c.Seek([]byte(from)); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if string(k[:len(storage.DateLayout)]) > to {
				break
			}
			value := bucket.Get(v)
			if value == nil {
				continue
			}
			var activity storage.Activity
			if err := unmarshal(value, &activity); err != nil {
				return err
			}
			activities = append(activities, activity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (s *activityStore) Query(ctx context.Context, filter storage.ActivityFilter) ([]storage.Activity, int, error) {
	matched := make([]storage.Activity, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := indexBucket(tx, bucketIndexActivityUser, filter.UserID)
		if index == nil {
			return nil
		}
		bucket := tx.Bucket([]byte(bucketActivities))

		return index.ForEach(func(k, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if filter.Date != "" && string(k[:len(storage.DateLayout)]) != filter.Date {
				return nil
			}
			value := bucket.Get(v)
			if value == nil {
				return nil
			}
			var activity storage.Activity
			if err := unmarshal(value, &activity); err != nil {
				return err
			}
			if filter.Platform != "" && activity.Platform != filter.Platform {
				return nil
			}
			matched = append(matched, activity)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []storage.Activity{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (s *activityStore) ListOpen(ctx context.Context) ([]storage.Activity, error) {
	activities := make([]storage.Activity, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketActivities))
		return tx.Bucket([]byte(bucketActivityOpen)).ForEach(func(_, id []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := bucket.Get(id)
			if value == nil {
				return nil
			}
			var activity storage.Activity
			if err := unmarshal(value, &activity); err != nil {
				return err
			}
			if activity.Open() {
				activities = append(activities, activity)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (s *activityStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		index := indexBucket(tx, bucketIndexActivityUser, userID)
		if index == nil {
			return nil
		}

		activities := tx.Bucket([]byte(bucketActivities))
		slots := tx.Bucket([]byte(bucketActivityOpen))

		err := index.ForEach(func(_, id []byte) error {
			value := activities.Get(id)
			if value == nil {
				return nil
			}
			var activity storage.Activity
			if err := unmarshal(value, &activity); err != nil {
				return err
			}
			slot := openSlotKey(activity.UserID, activity.Platform, activity.Date)
			if bytes.Equal(slots.Get(slot), id) {
				if err := slots.Delete(slot); err != nil {
					return err
				}
			}
			deleted++
			return activities.Delete(id)
		})
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketIndexes)).Bucket([]byte(bucketIndexActivityUser)).DeleteBucket([]byte(userID))
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *activityStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		activities := tx.Bucket([]byte(bucketActivities))

		var doomed []storage.Activity
		err := activities.ForEach(func(_, v []byte) error {
			var activity storage.Activity
			if err := unmarshal(v, &activity); err != nil {
				return err
			}
			if !activity.Open() && activity.StartTime.Before(cutoff) {
				doomed = append(doomed, activity)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting while iterating with ForEach is unsafe in bbolt
		for _, activity := range doomed {
			if err := activities.Delete([]byte(activity.ID)); err != nil {
				return err
			}
			if index := indexBucket(tx, bucketIndexActivityUser, activity.UserID); index != nil {
				if err := index.Delete(userIndexKey(activity)); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
