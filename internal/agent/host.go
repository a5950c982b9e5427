package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goodtune/socialtracker/internal/nativemsg"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
)

// Native message types sent by the browser extension.
const (
	MessageTabUpdated   = "tab_updated"
	MessageTabActivated = "tab_activated"
	MessageTabRemoved   = "tab_removed"
	MessageFocusLost    = "focus_lost"
	MessageFocusGained  = "focus_gained"
	MessageSetToken     = "set_token"
	MessageGetSessions  = "get_sessions"
	MessageUsage        = "usage"
	MessageTakeBreak    = "take_break"

	// MessageLimitReached is pushed by the host when a session hits its limit.
	MessageLimitReached = "limit_reached"
)

// DefaultLimitCheckInterval is how often tracked sessions are compared with
// their limits.
const DefaultLimitCheckInterval = time.Minute

// Message is one event from the browser extension.
type Message struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Type     string          `json:"type"`
	TabID    int             `json:"tabId"`
	URL      string          `json:"url"`
	Status   string          `json:"status"`
	Token    string          `json:"token"`
	Platform string          `json:"platform"`
}

// Response answers a Message.
type Response struct {
	ID       json.RawMessage                           `json:"id,omitempty"`
	OK       bool                                      `json:"ok"`
	Error    string                                    `json:"error,omitempty"`
	Ended    bool                                      `json:"ended,omitempty"`
	Sessions []TabSession                              `json:"sessions,omitempty"`
	Usage    map[platform.Platform]usage.PlatformUsage `json:"usage,omitempty"`
}

// Event is pushed to the extension without a preceding Message.
type Event struct {
	Type string `json:"type"`
	LimitAlert
}

// Host serves the native messaging protocol for an Agent.
type Host struct {
	agent         *Agent
	reader        *nativemsg.Reader
	writer        *nativemsg.Writer
	logger        zerolog.Logger
	limitInterval time.Duration
}

// NewHost creates a host reading messages from r and answering on w.
func NewHost(agent *Agent, r io.Reader, w io.Writer, logger zerolog.Logger) *Host {
	return &Host{
		agent:         agent,
		reader:        nativemsg.NewReader(r),
		writer:        nativemsg.NewWriter(w),
		logger:        logger.With().Str("component", "native-host").Logger(),
		limitInterval: DefaultLimitCheckInterval,
	}
}

// WithLimitCheck sets how often sessions are checked against their limits.
// Zero disables limit alerts.
func (h *Host) WithLimitCheck(interval time.Duration) *Host {
	h.limitInterval = interval
	return h
}

type frame struct {
	body json.RawMessage
	err  error
}

// Serve handles messages until the input closes or ctx is cancelled. A clean
// end of input returns nil.
func (h *Host) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if h.limitInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.agent.WatchLimits(ctx, h.limitInterval, h.pushLimit)
		}()
	}

	frames := make(chan frame)
	go func() {
		defer close(frames)
		for {
			body, err := h.reader.ReadRaw()
			select {
			case frames <- frame{body: body, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return ctx.Err()
			}
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					h.logger.Info().Msg("Extension disconnected")
					return nil
				}
				return fmt.Errorf("read message: %w", f.err)
			}
			if err := h.writer.Write(h.handle(ctx, f.body)); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

func (h *Host) handle(ctx context.Context, body json.RawMessage) Response {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Warn().Err(err).Msg("Malformed message")
		return Response{Error: "malformed message"}
	}

	h.logger.Debug().Str("type", msg.Type).Int("tab", msg.TabID).Msg("Message received")

	resp := Response{ID: msg.ID, OK: true}
	switch msg.Type {
	case MessageTabUpdated:
		if msg.Status == "complete" && msg.URL != "" {
			h.agent.OnTabURLChange(ctx, msg.TabID, msg.URL)
		}
	case MessageTabActivated:
		if msg.URL != "" {
			h.agent.OnTabActivated(ctx, msg.TabID, msg.URL)
		}
	case MessageTabRemoved:
		h.agent.OnTabClosed(ctx, msg.TabID)
	case MessageFocusLost:
		h.agent.OnWindowFocusLost(ctx)
	case MessageFocusGained:
		if msg.URL != "" {
			h.agent.OnWindowFocusGained(ctx, msg.TabID, msg.URL)
		}
	case MessageSetToken:
		h.agent.SetToken(msg.Token)
	case MessageTakeBreak:
		resp.Ended = h.agent.TakeBreak(ctx, msg.TabID)
	case MessageGetSessions:
		resp.Sessions = h.agent.Sessions()
	case MessageUsage:
		return h.usage(ctx, msg)
	default:
		return Response{ID: msg.ID, Error: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
	return resp
}

func (h *Host) pushLimit(alert LimitAlert) {
	if err := h.writer.Write(Event{Type: MessageLimitReached, LimitAlert: alert}); err != nil {
		h.logger.Warn().Err(err).Int("tab", alert.TabID).Msg("Failed to push limit alert")
	}
}

func (h *Host) usage(ctx context.Context, msg Message) Response {
	var filter platform.Platform
	if msg.Platform != "" {
		p, err := platform.Parse(msg.Platform)
		if err != nil {
			return Response{ID: msg.ID, Error: err.Error()}
		}
		filter = p
	}

	daily, err := h.agent.TodayUsage(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to fetch usage")
		return Response{ID: msg.ID, Error: err.Error()}
	}

	if filter != "" {
		daily = map[platform.Platform]usage.PlatformUsage{filter: daily[filter]}
	}
	return Response{ID: msg.ID, OK: true, Usage: daily}
}
