package storage

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrOpenSessionExists is returned by CreateOpen when the
	// (user, platform, date) slot already holds an open activity.
	ErrOpenSessionExists = errors.New("storage: open session exists")

	// ErrAlreadyClosed is returned by Close for an activity that already has an end time.
	ErrAlreadyClosed = errors.New("storage: activity already closed")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Activities() ActivityStore
	Users() UserStore
	Notifications() NotificationStore
	Recommendations() RecommendationStore
}

// ActivityStore persists activity sessions.
//
// CreateOpen and Close are atomic with respect to the open slot of
// (user, platform, date): at most one open activity occupies it.
type ActivityStore interface {
	CreateOpen(ctx context.Context, activity Activity) error
	Get(ctx context.Context, id string) (*Activity, error)
	FindOpen(ctx context.Context, userID string, p platform.Platform, date string) (*Activity, error)
	Close(ctx context.Context, id string, endTime time.Time, duration int, updatedAt time.Time) (*Activity, error)
	ListByDate(ctx context.Context, userID, date string) ([]Activity, error)
	ListByDateRange(ctx context.Context, userID, from, to string) ([]Activity, error)
	Query(ctx context.Context, filter ActivityFilter) ([]Activity, int, error)
	ListOpen(ctx context.Context) ([]Activity, error)
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ActivityFilter defines criteria for querying a user's activity history.
// Results are ordered by start time, newest first.
type ActivityFilter struct {
	UserID   string
	Platform platform.Platform
	Date     string
	Limit    int
	Offset   int
}

// UserStore manages user profiles.
type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	Upsert(ctx context.Context, user User) error
}

// NotificationStore manages in-app limit notifications.
type NotificationStore interface {
	Create(ctx context.Context, notification Notification) error
	ListUnread(ctx context.Context, userID string) ([]Notification, error)
	HasRecent(ctx context.Context, userID string, p platform.Platform, since time.Time) (bool, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
}

// RecommendationStore manages generated recommendations.
type RecommendationStore interface {
	Create(ctx context.Context, rec Recommendation) error
	ListUnread(ctx context.Context, userID string, limit int) ([]Recommendation, error)
	HasRecent(ctx context.Context, userID string, recType RecommendationType, p platform.Platform, since time.Time) (bool, error)
	MarkRead(ctx context.Context, userID, id string) error
}
