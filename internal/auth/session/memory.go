package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is the in-process session backend for single-instance deployments
// and tests. State does not survive a restart, which logs everyone out; that
// is acceptable for the deployments this backend targets.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory builds a memory backend. Expired entries are swept every minute.
func NewMemory() *Memory {
	return &Memory{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *Memory) SetCurrent(_ context.Context, kind string, principalID int64, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.cache.Set(sessionKey(kind, principalID), jti, ttl)
	return nil
}

func (m *Memory) IsCurrent(_ context.Context, kind string, principalID int64, jti string) (bool, error) {
	v, ok := m.cache.Get(sessionKey(kind, principalID))
	if !ok {
		return false, nil
	}
	return v.(string) == jti, nil
}

func (m *Memory) Clear(_ context.Context, kind string, principalID int64) error {
	m.cache.Delete(sessionKey(kind, principalID))
	return nil
}

func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past expiry; nothing left to deny.
		return nil
	}
	m.cache.Set(revokedKey(jti), struct{}{}, ttl)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := m.cache.Get(revokedKey(jti))
	return ok, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}

func sessionKey(kind string, principalID int64) string {
	return fmt.Sprintf("session:%s:%d", kind, principalID)
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}
