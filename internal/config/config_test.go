package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.APIPort != 5000 {
		t.Errorf("expected api port 5000, got %d", cfg.Server.APIPort)
	}
	if cfg.Storage.Type != "redis" {
		t.Errorf("expected redis storage, got %s", cfg.Storage.Type)
	}
	if cfg.Limits.DefaultMinutes != 60 {
		t.Errorf("expected default limit 60, got %d", cfg.Limits.DefaultMinutes)
	}
	if cfg.Notifications.DedupWindow != "24h" {
		t.Errorf("expected dedup window 24h, got %s", cfg.Notifications.DedupWindow)
	}
	if cfg.Tracking.MaxSessionAge != "4h" {
		t.Errorf("expected max session age 4h, got %s", cfg.Tracking.MaxSessionAge)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  type: bolt
  path: /tmp/socialtracker-test.bolt
limits:
  default_minutes: 45
tracking:
  timezone: UTC
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SOCIALTRACKER_SERVER_API_PORT", "8081")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected bolt storage, got %s", cfg.Storage.Type)
	}
	if cfg.Limits.DefaultMinutes != 45 {
		t.Errorf("expected default limit 45, got %d", cfg.Limits.DefaultMinutes)
	}
	if cfg.Server.APIPort != 8081 {
		t.Errorf("expected env override api port 8081, got %d", cfg.Server.APIPort)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Location())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"storage type", "storage:\n  type: mongo\n"},
		{"default limit", "limits:\n  default_minutes: 0\n"},
		{"timezone", "tracking:\n  timezone: Mars/Olympus\n"},
		{"cleanup time", "tracking:\n  cleanup_time: noon\n"},
		{"email host", "notifications:\n  email:\n    enabled: true\n    host: \"\"\n"},
		{"email security", "notifications:\n  email:\n    enabled: true\n    security: ssl\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("expected fallback, got %v", got)
	}
	if got := Duration("soon", time.Minute); got != time.Minute {
		t.Errorf("expected fallback for malformed value, got %v", got)
	}
}

func TestDefaultsAndKnownKeys(t *testing.T) {
	cfg := Defaults()
	if cfg.Agent.RetryMax != 2 {
		t.Errorf("expected agent retry_max 2, got %d", cfg.Agent.RetryMax)
	}
	if cfg.Tracking.CleanupTime != "03:00" {
		t.Errorf("expected cleanup time 03:00, got %s", cfg.Tracking.CleanupTime)
	}

	keys := KnownKeys()
	for _, key := range []string{"server.api_port", "storage.redis.host", "notifications.email.from", "agent.token", "api.allowed_origins"} {
		if !keys[key] {
			t.Errorf("expected %s to be a known key", key)
		}
	}
	if keys["server.dns_port"] {
		t.Errorf("server.dns_port must not be a known key")
	}
}
