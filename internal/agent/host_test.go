package agent

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/nativemsg"
	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/goodtune/socialtracker/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(t *testing.T, msgs ...interface{}) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := nativemsg.NewWriter(&buf)
	for _, msg := range msgs {
		require.NoError(t, w.Write(msg))
	}
	return &buf
}

func responses(t *testing.T, out *bytes.Buffer) []Response {
	t.Helper()
	r := nativemsg.NewReader(out)
	var resps []Response
	for {
		var resp Response
		err := r.Read(&resp)
		if errors.Is(err, io.EOF) {
			return resps
		}
		require.NoError(t, err)
		resps = append(resps, resp)
	}
}

func serve(t *testing.T, a *Agent, in *bytes.Buffer) []Response {
	t.Helper()
	var out bytes.Buffer
	host := NewHost(a, in, &out, zerolog.Nop())
	require.NoError(t, host.Serve(context.Background()))
	return responses(t, &out)
}

func TestHostTabLifecycle(t *testing.T) {
	a, remote, _ := newTestAgent(t, "")

	in := frames(t,
		map[string]interface{}{"type": "set_token", "token": "secret", "id": 1},
		map[string]interface{}{"type": "tab_updated", "tabId": 4, "url": "https://facebook.com/", "status": "loading"},
		map[string]interface{}{"type": "tab_updated", "tabId": 4, "url": "https://facebook.com/", "status": "complete"},
		map[string]interface{}{"type": "tab_activated", "tabId": 5, "url": "https://youtube.com/"},
		map[string]interface{}{"type": "get_sessions", "id": "s1"},
		map[string]interface{}{"type": "tab_removed", "tabId": 4},
		map[string]interface{}{"type": "focus_lost"},
		map[string]interface{}{"type": "focus_gained", "tabId": 5, "url": "https://youtube.com/"},
		map[string]interface{}{"type": "get_sessions"},
	)

	resps := serve(t, a, in)
	require.Len(t, resps, 9)
	for i, resp := range resps {
		assert.True(t, resp.OK, "response %d: %s", i, resp.Error)
	}

	assert.JSONEq(t, `1`, string(resps[0].ID))
	assert.JSONEq(t, `"s1"`, string(resps[4].ID))
	require.Len(t, resps[4].Sessions, 2)
	assert.Equal(t, platform.Facebook, resps[4].Sessions[0].Platform)
	assert.Equal(t, platform.YouTube, resps[4].Sessions[1].Platform)

	require.Len(t, resps[8].Sessions, 1)
	assert.Equal(t, 5, resps[8].Sessions[0].TabID)

	starts, ends := remote.calls()
	assert.Equal(t, 3, starts)
	assert.Equal(t, 2, ends)
}

func TestHostUsage(t *testing.T) {
	a, remote, _ := newTestAgent(t, "secret")
	remote.daily = map[platform.Platform]usage.PlatformUsage{
		platform.Facebook: {Duration: 15, Sessions: 2},
		platform.TikTok:   {Duration: 5, Sessions: 1},
	}

	resps := serve(t, a, frames(t,
		map[string]interface{}{"type": "usage"},
		map[string]interface{}{"type": "usage", "platform": "TikTok"},
		map[string]interface{}{"type": "usage", "platform": "myspace"},
	))
	require.Len(t, resps, 3)

	assert.True(t, resps[0].OK)
	assert.Len(t, resps[0].Usage, 2)

	assert.True(t, resps[1].OK)
	assert.Equal(t, map[platform.Platform]usage.PlatformUsage{platform.TikTok: {Duration: 5, Sessions: 1}}, resps[1].Usage)

	assert.False(t, resps[2].OK)
	assert.Contains(t, resps[2].Error, "unsupported platform")
	assert.Equal(t, []string{"2024-05-06", "2024-05-06"}, remote.dates)
}

func TestHostBadMessagesKeepServing(t *testing.T) {
	a, _, _ := newTestAgent(t, "secret")

	var in bytes.Buffer
	garbage := []byte("{not json")
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(garbage)))
	in.Write(header[:])
	in.Write(garbage)
	in.Write(frames(t,
		map[string]interface{}{"type": "reboot"},
		map[string]interface{}{"type": "get_sessions"},
	).Bytes())

	resps := serve(t, a, &in)
	require.Len(t, resps, 3)
	assert.False(t, resps[0].OK)
	assert.Equal(t, "malformed message", resps[0].Error)
	assert.False(t, resps[1].OK)
	assert.Contains(t, resps[1].Error, "reboot")
	assert.True(t, resps[2].OK)
}

func TestHostTruncatedInput(t *testing.T) {
	a, _, _ := newTestAgent(t, "secret")

	in := bytes.NewBuffer([]byte{10, 0, 0, 0, '{'})
	var out bytes.Buffer
	err := NewHost(a, in, &out, zerolog.Nop()).Serve(context.Background())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestHostContextCancelled(t *testing.T) {
	a, _, _ := newTestAgent(t, "secret")

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := NewHost(a, pr, &out, zerolog.Nop()).Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostTakeBreak(t *testing.T) {
	a, remote, _ := newTestAgent(t, "token")

	in := frames(t,
		map[string]interface{}{"type": "tab_updated", "tabId": 4, "url": "https://linkedin.com/feed", "status": "complete"},
		map[string]interface{}{"type": "take_break", "tabId": 4, "id": "b1"},
		map[string]interface{}{"type": "take_break", "tabId": 4, "id": "b2"},
	)

	resps := serve(t, a, in)
	require.Len(t, resps, 3)
	assert.True(t, resps[1].OK)
	assert.True(t, resps[1].Ended)
	assert.True(t, resps[2].OK)
	assert.False(t, resps[2].Ended)

	starts, ends := remote.calls()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Empty(t, a.Sessions())
}

func TestHostPushesLimitReached(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.Facebook] = 20

	a.OnTabURLChange(context.Background(), 9, "https://m.facebook.com/")
	clk.Advance(21 * time.Minute)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	host := NewHost(a, inR, outW, zerolog.Nop()).WithLimitCheck(5 * time.Millisecond)

	served := make(chan error, 1)
	go func() { served <- host.Serve(context.Background()) }()

	events := make(chan Event, 1)
	go func() {
		var ev Event
		if err := nativemsg.NewReader(outR).Read(&ev); err == nil {
			events <- ev
		}
	}()

	select {
	case ev := <-events:
		assert.Equal(t, MessageLimitReached, ev.Type)
		assert.Equal(t, 9, ev.TabID)
		assert.Equal(t, platform.Facebook, ev.Platform)
		assert.Equal(t, 21, ev.ElapsedMinutes)
		assert.Equal(t, 20, ev.LimitMinutes)
		assert.Equal(t, "You've exceeded your 20 minute limit on Facebook", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no limit_reached event")
	}

	require.NoError(t, inW.Close())
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	_ = outW.Close()
}

func TestHostLimitCheckDisabled(t *testing.T) {
	a, remote, clk := newTestAgent(t, "token")
	remote.limits[platform.YouTube] = 1

	a.OnTabURLChange(context.Background(), 1, "https://youtube.com/")
	clk.Advance(time.Hour)

	var out bytes.Buffer
	in := frames(t, map[string]interface{}{"type": "get_sessions"})
	host := NewHost(a, in, &out, zerolog.Nop()).WithLimitCheck(0)
	require.NoError(t, host.Serve(context.Background()))

	resps := responses(t, &out)
	require.Len(t, resps, 1)
	require.Len(t, resps[0].Sessions, 1)
	assert.Len(t, a.CheckLimits(), 1, "nothing was reported while serving")
}
