package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Auth            AuthConfig            `mapstructure:"auth"`
	Tracking        TrackingConfig        `mapstructure:"tracking"`
	Limits          LimitsConfig          `mapstructure:"limits"`
	Notifications   NotificationsConfig   `mapstructure:"notifications"`
	Recommendations RecommendationsConfig `mapstructure:"recommendations"`
	API             APIConfig             `mapstructure:"api"`
	Agent           AgentConfig           `mapstructure:"agent"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress     string `mapstructure:"bind_address"`
	APIPort         int    `mapstructure:"api_port"`
	MetricsPort     int    `mapstructure:"metrics_port"`
	ReadTimeout     string `mapstructure:"read_timeout"`
	WriteTimeout    string `mapstructure:"write_timeout"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "redis" or "bolt"
	Path  string      `mapstructure:"path"` // bolt database file
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig defines bearer token settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	TokenTTL  string `mapstructure:"token_ttl"`
}

// TrackingConfig defines session lifecycle settings
type TrackingConfig struct {
	Timezone      string `mapstructure:"timezone"`
	MaxSessionAge string `mapstructure:"max_session_age"`
	SweepInterval string `mapstructure:"sweep_interval"`
	RetentionDays int    `mapstructure:"retention_days"` // 0 keeps history forever
	CleanupTime   string `mapstructure:"cleanup_time"`
}

// LimitsConfig defines daily limit defaults
type LimitsConfig struct {
	DefaultMinutes int `mapstructure:"default_minutes"`
}

// NotificationsConfig defines notification delivery settings
type NotificationsConfig struct {
	DedupWindow string      `mapstructure:"dedup_window"`
	Email       EmailConfig `mapstructure:"email"`
}

// EmailConfig defines the SMTP channel
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Timeout  string `mapstructure:"timeout"`
	// Security is one of auto, none, starttls or tls. auto upgrades with
	// STARTTLS only when credentials are set.
	Security string `mapstructure:"security"`
}

// RecommendationsConfig defines the recommendation policy source
type RecommendationsConfig struct {
	PolicyDir   string `mapstructure:"policy_dir"`
	DedupWindow string `mapstructure:"dedup_window"`
	ListLimit   int    `mapstructure:"list_limit"`
}

// APIConfig defines HTTP API middleware settings
type APIConfig struct {
	RateLimit       int      `mapstructure:"rate_limit"`
	RateLimitWindow string   `mapstructure:"rate_limit_window"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

// AgentConfig defines the tab tracking agent
type AgentConfig struct {
	ServerURL           string `mapstructure:"server_url"`
	Token               string `mapstructure:"token"`
	RequestTimeout      string `mapstructure:"request_timeout"`
	RetryMax            int    `mapstructure:"retry_max"`
	ClassifierCacheSize int    `mapstructure:"classifier_cache_size"`
	LimitCheckInterval  string `mapstructure:"limit_check_interval"`
}

// Load loads configuration from file and environment variables.
// An empty or missing config file falls back to defaults and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("SOCIALTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration produced by defaults alone.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// KnownKeys returns the set of recognised configuration keys.
func KnownKeys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 5000)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.type", "redis")
	v.SetDefault("storage.path", "/var/lib/socialtracker/socialtracker.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "socialtracker")
	v.SetDefault("auth.token_ttl", "168h")

	// Tracking defaults
	v.SetDefault("tracking.timezone", "Local")
	v.SetDefault("tracking.max_session_age", "4h")
	v.SetDefault("tracking.sweep_interval", "1m")
	v.SetDefault("tracking.retention_days", 0)
	v.SetDefault("tracking.cleanup_time", "03:00")

	// Limit defaults
	v.SetDefault("limits.default_minutes", 60)

	// Notification defaults
	v.SetDefault("notifications.dedup_window", "24h")
	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.host", "localhost")
	v.SetDefault("notifications.email.port", 587)
	v.SetDefault("notifications.email.username", "")
	v.SetDefault("notifications.email.password", "")
	v.SetDefault("notifications.email.from", "socialtracker@localhost")
	v.SetDefault("notifications.email.timeout", "10s")
	v.SetDefault("notifications.email.security", "auto")

	// Recommendation defaults
	v.SetDefault("recommendations.policy_dir", "")
	v.SetDefault("recommendations.dedup_window", "24h")
	v.SetDefault("recommendations.list_limit", 10)

	// API defaults
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.rate_limit_window", "1m")
	v.SetDefault("api.allowed_origins", []string{})

	// Agent defaults
	v.SetDefault("agent.server_url", "http://localhost:5000")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.request_timeout", "10s")
	v.SetDefault("agent.retry_max", 2)
	v.SetDefault("agent.classifier_cache_size", 1024)
	v.SetDefault("agent.limit_check_interval", "1m")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "redis"
	case "redis", "bolt":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be redis or bolt)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "bolt" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required for bolt storage")
	}

	if _, err := time.LoadLocation(cfg.Tracking.Timezone); err != nil {
		return fmt.Errorf("invalid tracking timezone %q: %w", cfg.Tracking.Timezone, err)
	}
	if cfg.Tracking.RetentionDays < 0 {
		return fmt.Errorf("tracking retention_days must not be negative")
	}
	if _, _, err := ParseClockTime(cfg.Tracking.CleanupTime); err != nil {
		return fmt.Errorf("invalid tracking cleanup_time: %w", err)
	}

	if cfg.Limits.DefaultMinutes < 1 || cfg.Limits.DefaultMinutes > 1440 {
		return fmt.Errorf("limits default_minutes must be between 1 and 1440, got %d", cfg.Limits.DefaultMinutes)
	}

	if cfg.Notifications.Email.Enabled {
		if cfg.Notifications.Email.Host == "" {
			return fmt.Errorf("notifications email host is required when email is enabled")
		}
		if cfg.Notifications.Email.From == "" {
			return fmt.Errorf("notifications email from address is required when email is enabled")
		}
		switch cfg.Notifications.Email.Security {
		case "auto", "none", "starttls", "tls":
		default:
			return fmt.Errorf("invalid notifications email security: %s (must be auto, none, starttls or tls)", cfg.Notifications.Email.Security)
		}
	}

	if cfg.Agent.RetryMax < 0 {
		return fmt.Errorf("agent retry_max must not be negative")
	}

	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api rate_limit must not be negative")
	}

	return nil
}

// Location returns the time zone used to derive activity dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Tracking.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Duration parses value as a time.Duration, returning fallback when value is
// empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ParseClockTime parses an "HH:MM" time of day.
func ParseClockTime(value string) (hour, minute int, err error) {
	if value == "" {
		return 0, 0, nil
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return t.Hour(), t.Minute(), nil
}
