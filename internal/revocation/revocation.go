// Package revocation tracks refresh-token jtis that must no longer be
// accepted. The policy (revoke on logout and rotation) lives in the token
// service; this package is only the storage mechanism.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Blacklist is the pluggable revocation store. Revoke is idempotent; entries
// may be dropped once ttl has elapsed, since the token they refer to has
// expired on its own by then.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Memory is the single-process implementation. Expired entries are pruned
// opportunistically on writes.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time // jti -> entry expiry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[jti] = now.Add(ttl)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if m.now().After(exp) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
