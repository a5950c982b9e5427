package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
)

// TabSession is the activity a browser tab is currently tracked under.
type TabSession struct {
	TabID      int               `json:"tabId"`
	ActivityID string            `json:"activityId"`
	Platform   platform.Platform `json:"platform"`
	StartTime  time.Time         `json:"startTime"`
	Limit      int               `json:"limit"`
}

// TabSessions maps tab ids to their tracked sessions.
type TabSessions struct {
	mu       sync.RWMutex
	sessions map[int]TabSession
}

// NewTabSessions creates an empty session table.
func NewTabSessions() *TabSessions {
	return &TabSessions{sessions: make(map[int]TabSession)}
}

// Associate records session for its tab, replacing any previous one.
func (t *TabSessions) Associate(session TabSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[session.TabID] = session
}

// Dissociate removes and returns the session of tabID.
func (t *TabSessions) Dissociate(tabID int) (TabSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session, ok := t.sessions[tabID]
	if ok {
		delete(t.sessions, tabID)
	}
	return session, ok
}

// Lookup returns the session of tabID.
func (t *TabSessions) Lookup(tabID int) (TabSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	session, ok := t.sessions[tabID]
	return session, ok
}

// All returns every tracked session ordered by tab id.
func (t *TabSessions) All() []TabSession {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]TabSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		all = append(all, session)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TabID < all[j].TabID })
	return all
}
