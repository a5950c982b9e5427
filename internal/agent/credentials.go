package agent

import "sync"

// Credentials holds the bearer token the agent authenticates with.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

// NewCredentials creates credentials holding token, which may be empty.
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

// SetToken replaces the token. An empty token signs the agent out.
func (c *Credentials) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current token.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
