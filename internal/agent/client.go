package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/storage"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token for API requests.
type TokenSource interface {
	Token() string
}

// ClientConfig holds API client configuration
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status onto the shared error kinds.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return apperr.ErrNotFound
	case e.Status == http.StatusBadRequest:
		return apperr.ErrValidation
	case e.Status == http.StatusConflict && e.Code == "already_closed":
		return apperr.ErrAlreadyClosed
	case e.Status == http.StatusConflict:
		return apperr.ErrRaceLost
	default:
		return apperr.ErrUpstreamUnavailable
	}
}

// Client talks to the tracking API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	tokens  TokenSource
}

// NewClient creates an API client. Connection failures and 5xx responses
// are retried.
func NewClient(cfg ClientConfig, tokens TokenSource, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 200 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger: logger.With().Str("component", "api-client").Logger()}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		tokens:  tokens,
	}
}

type activityResponse struct {
	Activity *storage.Activity `json:"activity"`
}

// StartSession opens an activity for p.
func (c *Client) StartSession(ctx context.Context, p platform.Platform, url string) (*storage.Activity, error) {
	var resp activityResponse
	body := map[string]string{"platform": string(p), "url": url}
	if err := c.do(ctx, http.MethodPost, "/api/activity/start", body, &resp); err != nil {
		return nil, err
	}
	if resp.Activity == nil {
		return nil, errors.New("api: start response without activity")
	}
	return resp.Activity, nil
}

// EndSession closes activity id at endTime.
func (c *Client) EndSession(ctx context.Context, id string, endTime time.Time) (*storage.Activity, error) {
	var resp activityResponse
	body := map[string]string{"endTime": endTime.UTC().Format(time.RFC3339Nano)}
	if err := c.do(ctx, http.MethodPut, "/api/activity/end/"+id, body, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// Profile returns the signed in user's profile.
func (c *Client) Profile(ctx context.Context) (*storage.User, error) {
	var resp struct {
		User *storage.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, errors.New("api: profile response without user")
	}
	return resp.User, nil
}

// DailyUsage returns per-platform usage on date.
func (c *Client) DailyUsage(ctx context.Context, date string) (map[platform.Platform]usage.PlatformUsage, error) {
	var resp struct {
		Usage map[platform.Platform]usage.PlatformUsage `json:"usage"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/activity/daily/"+date, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Usage == nil {
		resp.Usage = map[platform.Platform]usage.PlatformUsage{}
	}
	return resp.Usage, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload interface{}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream("api", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apperr.Upstream("api", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
