package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Sessions maps opaque tokens to identities. Each lookup extends the
// session by the full TTL.
type Sessions struct {
	cache *cache.Cache
}

// NewSessions creates a session table. onEnd, when non-nil, runs after a
// session is ended or expires.
func NewSessions(ttl time.Duration, onEnd func(Identity)) *Sessions {
	c := cache.New(ttl, ttl*2)
	if onEnd != nil {
		c.OnEvicted(func(_ string, v any) {
			if id, ok := v.(Identity); ok {
				onEnd(id)
			}
		})
	}
	return &Sessions{cache: c}
}

// Start issues a token for id.
func (s *Sessions) Start(id Identity) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	s.cache.Set(token, id, cache.DefaultExpiration)
	return token, nil
}

// Lookup resolves token and slides its expiry.
func (s *Sessions) Lookup(token string) (Identity, bool) {
	if token == "" {
		return Identity{}, false
	}
	v, ok := s.cache.Get(token)
	if !ok {
		return Identity{}, false
	}
	id := v.(Identity)
	s.cache.Set(token, id, cache.DefaultExpiration)
	return id, true
}

// End removes token and reports the identity it belonged to.
func (s *Sessions) End(token string) (Identity, bool) {
	v, ok := s.cache.Get(token)
	if !ok {
		return Identity{}, false
	}
	s.cache.Delete(token)
	return v.(Identity), true
}

// Active reports whether id holds any live session.
func (s *Sessions) Active(id Identity) bool {
	for _, item := range s.cache.Items() {
		if other, ok := item.Object.(Identity); ok && other == id {
			return true
		}
	}
	return false
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int { return s.cache.ItemCount() }
