package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/socialtracker/internal/config"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client              *redis.Client
	activityStore       *activityStore
	userStore           *userStore
	notificationStore   *notificationStore
	recommendationStore *recommendationStore
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	// Host may already carry the port
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStore(client), nil
}

// NewStore wraps an existing client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client:              client,
		activityStore:       newActivityStore(client),
		userStore:           &userStore{client: client},
		notificationStore:   &notificationStore{client: client},
		recommendationStore: &recommendationStore{client: client},
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Activities returns the ActivityStore implementation
func (s *Store) Activities() storage.ActivityStore {
	return s.activityStore
}

// Users returns the UserStore implementation
func (s *Store) Users() storage.UserStore {
	return s.userStore
}

// Notifications returns the NotificationStore implementation
func (s *Store) Notifications() storage.NotificationStore {
	return s.notificationStore
}

// Recommendations returns the RecommendationStore implementation
func (s *Store) Recommendations() storage.RecommendationStore {
	return s.recommendationStore
}
