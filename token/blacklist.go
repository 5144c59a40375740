package token

import (
	"context"
	"sync"
	"time"
)

// Blacklist is a time-indexed cache of access token IDs (jti) that must be
// rejected before their natural expiry. Entries never need to outlive the
// token's own exp. Implementations must be safe for concurrent use.
type Blacklist interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Purge removes entries whose expiry has passed and returns how many were
	// removed. Implementations with native TTL expiry may make this a no-op.
	Purge(ctx context.Context) (int, error)
}

// InMemoryBlacklist is a mutex-protected map implementation
type InMemoryBlacklist struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

var _ Blacklist = (*InMemoryBlacklist)(nil)

func NewInMemoryBlacklist() *InMemoryBlacklist {
	return &InMemoryBlacklist{
		revoked: make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// NewInMemoryBlacklistWithNowFunc allows time injection for tests
func NewInMemoryBlacklistWithNowFunc(nowFunc func() time.Time) *InMemoryBlacklist {
	return &InMemoryBlacklist{
		revoked: make(map[string]time.Time),
		nowFunc: nowFunc,
	}
}

func (c *InMemoryBlacklist) Add(_ context.Context, jti string, expiresAt time.Time) error {
	if !expiresAt.After(c.nowFunc()) {
		return nil // Already expired tokens are rejected on their own
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = expiresAt
	return nil
}

func (c *InMemoryBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exp, exists := c.revoked[jti]
	if !exists {
		return false, nil
	}
	// Entries past their expiry count as absent; Purge reaps them later.
	return exp.After(c.nowFunc()), nil
}

func (c *InMemoryBlacklist) Purge(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	removed := 0
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
			removed++
		}
	}
	return removed, nil
}
