// Package api serves the tracking HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/socialtracker/internal/auth"
	"github.com/goodtune/socialtracker/internal/notify"
	"github.com/goodtune/socialtracker/internal/recommend"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/goodtune/socialtracker/internal/users"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	AllowedOrigins  []string
}

// Deps holds the services behind the API routes.
type Deps struct {
	Tokens          *auth.Manager
	Tracker         *usage.Tracker
	Aggregator      *usage.Aggregator
	Users           *users.Service
	Notifications   *notify.Service
	Recommendations *recommend.Service
}

// Server represents the API HTTP server.
type Server struct {
	config      Config
	deps        Deps
	rateLimiter *RateLimiter
	router      *gin.Engine
	server      *http.Server
	listener    net.Listener
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if cfg.RateLimit == 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		router: gin.New(),
		logger: logger.With().Str("component", "api").Logger(),
	}
	if cfg.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Recovery handles panics
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware())
	r.Use(LoggingMiddleware(s.logger))
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(s.config.AllowedOrigins))
	}

	// Health check (public)
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(AuthMiddleware(s.deps.Tokens))
	if s.rateLimiter != nil {
		api.Use(RateLimitMiddleware(s.rateLimiter))
	}

	activityViews := NewActivityViews(s.deps.Tracker, s.deps.Aggregator, s.logger)
	activity := api.Group("/activity")
	{
		activity.POST("/start", activityViews.Start)
		activity.PUT("/end/:id", activityViews.End)
		activity.POST("/end-active", activityViews.EndActive)
		activity.GET("/daily/:date", activityViews.Daily)
		activity.GET("/weekly", activityViews.Weekly)
		activity.GET("/monthly/:year/:month", activityViews.Monthly)
		activity.GET("/history", activityViews.History)
		activity.DELETE("/clear", activityViews.Clear)
	}

	userViews := NewUserViews(s.deps.Users, s.logger)
	usersGroup := api.Group("/users")
	{
		usersGroup.GET("/profile", userViews.Profile)
		usersGroup.PUT("/profile", userViews.UpdateProfile)
		usersGroup.PUT("/limits", userViews.UpdateLimits)
		usersGroup.PUT("/notifications", userViews.UpdateNotifications)
		usersGroup.PUT("/preferences", userViews.UpdatePreferences)
	}

	notificationViews := NewNotificationViews(s.deps.Notifications, s.logger)
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationViews.List)
		notifications.PUT("/mark-all-read", notificationViews.MarkAllRead)
		notifications.PUT("/:id/read", notificationViews.MarkRead)
		notifications.DELETE("/:id", notificationViews.Delete)
	}

	recommendationViews := NewRecommendationViews(s.deps.Recommendations, s.logger)
	recommendations := api.Group("/recommendations")
	{
		recommendations.GET("", recommendationViews.List)
		recommendations.PUT("/:id/read", recommendationViews.MarkRead)
		recommendations.POST("/generate", recommendationViews.Generate)
	}

	r.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Route not found",
		})
	})
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener (for systemd socket activation).
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.config.ListenAddr, err)
		}
		s.listener = ln
	}

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting API server")

	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.ListenAddr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
