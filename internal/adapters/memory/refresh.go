// Package memory provides in-process adapters used when the gateway runs as a single instance.
package memory

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/HenryT2023/YT-AI-Platform-sub000/internal/domain/auth"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

var _ ports.RefreshResultCache = (*RefreshResultCache)(nil)

type cachedPair struct {
	pair      domainauth.CredentialPair
	expiresAt time.Time
}

// RefreshResultCache keeps rotated pairs keyed by the digest of the old refresh token.
type RefreshResultCache struct {
	mu      sync.Mutex
	entries map[string]cachedPair
	now     func() time.Time
}

// NewRefreshResultCache creates an empty cache.
func NewRefreshResultCache() *RefreshResultCache {
	return &RefreshResultCache{entries: make(map[string]cachedPair), now: time.Now}
}

// Get returns the cached pair for key if it has not expired. Expired entries are dropped.
func (c *RefreshResultCache) Get(_ context.Context, key string) (domainauth.CredentialPair, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domainauth.CredentialPair{}, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return domainauth.CredentialPair{}, false, nil
	}
	return e.pair, true, nil
}

// Put stores pair under key for ttl and sweeps expired entries.
func (c *RefreshResultCache) Put(_ context.Context, key string, pair domainauth.CredentialPair, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cachedPair{pair: pair, expiresAt: now.Add(ttl)}
	return nil
}

// Len reports the number of live and not-yet-swept entries.
func (c *RefreshResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
