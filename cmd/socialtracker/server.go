package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/socialtracker/internal/api"
	"github.com/goodtune/socialtracker/internal/auth"
	"github.com/goodtune/socialtracker/internal/clock"
	"github.com/goodtune/socialtracker/internal/config"
	"github.com/goodtune/socialtracker/internal/limits"
	"github.com/goodtune/socialtracker/internal/metrics"
	"github.com/goodtune/socialtracker/internal/notify"
	"github.com/goodtune/socialtracker/internal/policy"
	"github.com/goodtune/socialtracker/internal/recommend"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/storage/bolt"
	"github.com/goodtune/socialtracker/internal/storage/redis"
	"github.com/goodtune/socialtracker/internal/systemd"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/goodtune/socialtracker/internal/users"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start socialtracker API server",
	Long:  `Start the socialtracker API server, the stale session sweeper, the retention scheduler and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting socialtracker")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	clk := clock.RealClock{}
	location := cfg.Location()

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, config.Duration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	userService := users.NewService(store.Users(), cfg.Limits.DefaultMinutes, clk, logger)
	aggregator := usage.NewAggregator(store.Activities())

	// Initialize notification emitter
	var mailer notify.Mailer
	if cfg.Notifications.Email.Enabled {
		mailer = notify.NewSMTPMailer(cfg.Notifications.Email)
		logger.Info().
			Str("host", cfg.Notifications.Email.Host).
			Int("port", cfg.Notifications.Email.Port).
			Str("security", cfg.Notifications.Email.Security).
			Msg("Email notifications enabled")
	}

	emitter := notify.NewEmitter(
		store.Notifications(),
		userService,
		mailer,
		notify.EmitterConfig{
			DedupWindow:  config.Duration(cfg.Notifications.DedupWindow, notify.DefaultDedupWindow),
			EmailTimeout: config.Duration(cfg.Notifications.Email.Timeout, notify.DefaultEmailTimeout),
		},
		clk,
		logger,
	)

	evaluator := limits.NewEvaluator(userService, aggregator, emitter, logger)

	// Initialize session tracker
	tracker := usage.NewTracker(
		store.Activities(),
		evaluator,
		usage.Config{
			Location:      location,
			MaxSessionAge: config.Duration(cfg.Tracking.MaxSessionAge, 4*time.Hour),
			SweepInterval: config.Duration(cfg.Tracking.SweepInterval, time.Minute),
		},
		clk,
		logger,
	)
	tracker.Start()

	// Initialize recommendation policies
	policyEngine, err := policy.NewEngine(cfg.Recommendations.PolicyDir, logger)
	if err != nil {
		tracker.Stop()
		return fmt.Errorf("failed to initialize Policy Engine: %w", err)
	}

	recommendations := recommend.NewService(
		store.Recommendations(),
		policyEngine,
		aggregator,
		userService,
		recommend.Config{
			Location:    location,
			DedupWindow: config.Duration(cfg.Recommendations.DedupWindow, recommend.DefaultDedupWindow),
			ListLimit:   cfg.Recommendations.ListLimit,
		},
		clk,
		logger,
	)

	// Initialize Retention Scheduler
	cleanupHour, cleanupMinute, err := config.ParseClockTime(cfg.Tracking.CleanupTime)
	if err != nil {
		tracker.Stop()
		return fmt.Errorf("invalid cleanup time: %w", err)
	}
	retention := usage.NewRetentionScheduler(store.Activities(), cfg.Tracking.RetentionDays, cleanupHour, cleanupMinute, clk, logger)
	retention.Start()

	// Initialize API Server
	apiConfig := api.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		ReadTimeout:     config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout:    config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second),
		RateLimit:       cfg.API.RateLimit,
		RateLimitWindow: config.Duration(cfg.API.RateLimitWindow, time.Minute),
		AllowedOrigins:  cfg.API.AllowedOrigins,
	}

	apiServer := api.NewServer(apiConfig, api.Deps{
		Tokens:          tokens,
		Tracker:         tracker,
		Aggregator:      aggregator,
		Users:           userService,
		Notifications:   notify.NewService(store.Notifications()),
		Recommendations: recommendations,
	}, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		retention.Stop()
		tracker.Stop()
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	logger.Info().
		Str("addr", apiServer.Addr()).
		Msg("API Server started")

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			_ = apiServer.Stop()
			retention.Stop()
			tracker.Stop()
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	logger.Info().Msg("socialtracker startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	_ = systemd.NotifyStatus("Serving API on %s", apiServer.Addr())

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		logger.Info().Msg("SIGHUP received, reloading policies...")
		_ = systemd.NotifyReloading()
		if err := policyEngine.Reload(); err != nil {
			logger.Error().Err(err).Msg("Failed to reload policies")
		} else {
			logger.Info().Msg("Policies reloaded successfully")
		}
		_ = systemd.NotifyReady()
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	retention.Stop()
	tracker.Stop()
	emitter.Wait()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("socialtracker stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "redis":
		return redis.Open(cfg.Redis)
	case "bolt":
		return bolt.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be redis or bolt)", cfg.Type)
	}
}
