package agent

import (
	"testing"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTabSessions(t *testing.T) {
	sessions := NewTabSessions()
	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	sessions.Associate(TabSession{TabID: 7, ActivityID: "a7", Platform: platform.YouTube, StartTime: start, Limit: 30})
	sessions.Associate(TabSession{TabID: 2, ActivityID: "a2", Platform: platform.Facebook, StartTime: start, Limit: 60})

	got, ok := sessions.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, "a7", got.ActivityID)

	all := sessions.All()
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].TabID)
	assert.Equal(t, 7, all[1].TabID)

	sessions.Associate(TabSession{TabID: 7, ActivityID: "a7b", Platform: platform.TikTok})
	got, _ = sessions.Lookup(7)
	assert.Equal(t, "a7b", got.ActivityID)

	removed, ok := sessions.Dissociate(7)
	require.True(t, ok)
	assert.Equal(t, platform.TikTok, removed.Platform)

	_, ok = sessions.Dissociate(7)
	assert.False(t, ok)
	_, ok = sessions.Lookup(7)
	assert.False(t, ok)
	assert.Len(t, sessions.All(), 1)
}

func TestCredentials(t *testing.T) {
	creds := NewCredentials("")
	assert.Empty(t, creds.Token())

	creds.SetToken("abc")
	assert.Equal(t, "abc", creds.Token())

	creds.SetToken("")
	assert.Empty(t, creds.Token())
}
