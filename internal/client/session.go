package client

import (
	"sync"
	"time"

	"github.com/rryowa/quantive/internal/models"
)

type Session struct {
	User            models.UserResponse
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// SessionCache holds the signed-in session for the lifetime of the process.
type SessionCache struct {
	mu      sync.RWMutex
	session *Session
}

func NewSessionCache() *SessionCache {
	return &SessionCache{}
}

// Snapshot returns a copy of the current session.
func (c *SessionCache) Snapshot() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

func (c *SessionCache) Set(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &s
}

// UpdateTokens replaces the credential pair and keeps the cached profile, but
// only while the session still holds usedRefresh: a renewal started before a
// new login or a logout must not overwrite what came after it.
func (c *SessionCache) UpdateTokens(usedRefresh, access, refresh string, expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.RefreshToken != usedRefresh {
		return false
	}
	c.session.AccessToken = access
	c.session.RefreshToken = refresh
	c.session.AccessExpiresAt = expiresAt
	return true
}

func (c *SessionCache) SetUser(user models.UserResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.User = user
	}
}

func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// ClearIf clears the session only while it still holds refreshToken, so a
// failed renewal cannot wipe a session created by a newer login.
func (c *SessionCache) ClearIf(refreshToken string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.RefreshToken != refreshToken {
		return false
	}
	c.session = nil
	return true
}
