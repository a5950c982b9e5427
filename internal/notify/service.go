package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/storage"
)

// Service exposes a user's notifications to the API.
type Service struct {
	notifications storage.NotificationStore
}

// NewService creates a notification service
func NewService(notifications storage.NotificationStore) *Service {
	return &Service{notifications: notifications}
}

// List returns the user's unread notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]storage.Notification, error) {
	list, err := s.notifications.ListUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []storage.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return notFound(s.notifications.MarkRead(ctx, userID, id), id)
}

// MarkAllRead marks every notification of the user as read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return notFound(s.notifications.Delete(ctx, userID, id), id)
}

func notFound(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("notification", id)
	}
	return err
}
