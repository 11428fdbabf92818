package secrets

import (
	"sync"
	"time"

	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
)

// secretCache keeps secrets for ttl; a zero ttl disables it
type secretCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

func newSecretCache(ttl time.Duration) *secretCache {
	return &secretCache{entries: make(map[string]*cacheEntry), ttl: ttl, now: time.Now}
}

func (c *secretCache) get(key string) *ports.Secret {
	if c.ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry.secret
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
}

func (c *secretCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
