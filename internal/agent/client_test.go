package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/apperr"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url, token string, retries int) *Client {
	return NewClient(ClientConfig{
		BaseURL:      url + "/",
		Timeout:      2 * time.Second,
		RetryMax:     retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, NewCredentials(token), zerolog.Nop())
}

func TestClientStartSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/activity/start", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "facebook", body["platform"])
		assert.Equal(t, "https://facebook.com/", body["url"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"activity":{"id":"a1","platform":"facebook","startTime":"2024-05-06T09:00:00Z","duration":0,"date":"2024-05-06"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "secret", 0)
	activity, err := client.StartSession(context.Background(), platform.Facebook, "https://facebook.com/")
	require.NoError(t, err)
	assert.Equal(t, "a1", activity.ID)
	assert.Equal(t, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC), activity.StartTime.UTC())
}

func TestClientEndSessionSendsEndTime(t *testing.T) {
	end := time.Date(2024, 5, 6, 9, 37, 31, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/activity/end/a1", r.URL.Path)

		var body map[string]time.Time
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, end.Equal(body["endTime"]))

		_, _ = w.Write([]byte(`{"activity":{"id":"a1","duration":38}}`))
	}))
	defer srv.Close()

	activity, err := newTestClient(srv.URL, "secret", 0).EndSession(context.Background(), "a1", end)
	require.NoError(t, err)
	assert.Equal(t, 38, activity.Duration)
}

func TestClientProfileAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/profile":
			_, _ = w.Write([]byte(`{"user":{"id":"user-1","limits":{"facebook":30}}}`))
		case "/api/activity/daily/2024-05-06":
			_, _ = w.Write([]byte(`{"date":"2024-05-06","usage":{"youtube":{"duration":20,"sessions":3}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, "secret", 0)

	user, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, user.Limits[platform.Facebook])

	daily, err := client.DailyUsage(context.Background(), "2024-05-06")
	require.NoError(t, err)
	assert.Equal(t, 20, daily[platform.YouTube].Duration)
	assert.Equal(t, 3, daily[platform.YouTube].Sessions)
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized","message":"invalid token"}`, apperr.ErrUnauthorized},
		{"not found", http.StatusNotFound, `{"error":"not_found","message":"activity not found"}`, apperr.ErrNotFound},
		{"validation", http.StatusBadRequest, `{"error":"bad_request","message":"platform is required"}`, apperr.ErrValidation},
		{"already closed", http.StatusConflict, `{"error":"already_closed","message":"activity already closed"}`, apperr.ErrAlreadyClosed},
		{"race lost", http.StatusConflict, `{"error":"conflict","message":"concurrent session start"}`, apperr.ErrRaceLost},
		{"plain text", http.StatusNotImplemented, `nope`, apperr.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, "secret", 0).EndSession(context.Background(), "a1", time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"user":{"id":"user-1"}}`))
	}))
	defer srv.Close()

	user, err := newTestClient(srv.URL, "secret", 2).Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "", 3).Profile(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, "secret", 0).Profile(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestClientOmitsAuthorizationWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"user":{"id":"anon"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "", 0).Profile(context.Background())
	require.NoError(t, err)
}
