// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/socialtracker/internal/config"
	"github.com/goodtune/socialtracker/internal/storage"
	redisstore "github.com/goodtune/socialtracker/internal/storage/redis"
)

// NewRedisStore returns a Redis-backed store on a fresh miniredis server.
// Both are closed when the test ends.
func NewRedisStore(t testing.TB) (storage.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redisstore.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("open redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}
