package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// HTTP API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_http_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialtracker_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_sessions_started_total",
			Help: "Total activity sessions started",
		},
		[]string{"platform"},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_sessions_closed_total",
			Help: "Total activity sessions closed",
		},
		[]string{"platform", "reason"},
	)

	SessionStartRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialtracker_session_start_retries_total",
			Help: "Session starts retried after losing the open-slot race",
		},
	)

	// Usage metrics
	UsageMinutesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_usage_minutes_consumed_total",
			Help: "Total usage minutes recorded by closed sessions",
		},
		[]string{"platform"},
	)

	// Limit metrics
	LimitsExceeded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_limits_exceeded_total",
			Help: "Daily limit checks that found usage at or over the limit",
		},
		[]string{"platform"},
	)

	// Notification metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_notifications_total",
			Help: "Notification delivery outcomes by channel",
		},
		[]string{"channel", "result"},
	)

	// Recommendation metrics
	RecommendationsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialtracker_recommendations_generated_total",
			Help: "Total recommendations stored",
		},
		[]string{"type"},
	)

	// Retention metrics
	ActivitiesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialtracker_activities_purged_total",
			Help: "Closed activities deleted by retention cleanup",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SessionsStarted,
		SessionsClosed,
		SessionStartRetries,
		UsageMinutesConsumed,
		LimitsExceeded,
		NotificationsTotal,
		RecommendationsGenerated,
		ActivitiesPurged,
	)
}

// Server exposes /metrics and a /health endpoint.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a metrics server for addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          promLogger{logger: logger},
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener makes Start serve on ln, e.g. a socket-activated listener.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start binds the listen address, unless a listener was set, and serves in
// the background.
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
		}
		s.listener = ln
	}

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight scrapes.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// promLogger routes promhttp errors to zerolog.
type promLogger struct {
	logger zerolog.Logger
}

func (l promLogger) Println(v ...interface{}) {
	l.logger.Error().Str("component", "metrics").Msg(fmt.Sprint(v...))
}
