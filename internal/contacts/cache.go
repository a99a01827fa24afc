package contacts

import (
	"context"
	"sync"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// Lookup resolves a user profile by email.
type Lookup interface {
	Lookup(ctx context.Context, email string) (models.User, error)
}

type cacheEntry struct {
	user    models.User
	expires time.Time
}

// CachingLookup wraps another Lookup with a TTL-based in-memory cache. Sender
// profiles are fetched once per message burst instead of once per message.
type CachingLookup struct {
	base Lookup
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingLookup returns a Lookup that caches profiles for the provided TTL.
func NewCachingLookup(base Lookup, ttl time.Duration) *CachingLookup {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingLookup{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// Lookup returns a cached profile when available, otherwise it delegates to
// the underlying lookup and stores the result.
func (c *CachingLookup) Lookup(ctx context.Context, email string) (models.User, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[email]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.Lookup(ctx, email)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.items[email] = cacheEntry{user: user, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return user, nil
}

// Invalidate drops a single cached profile, as after a profile update.
func (c *CachingLookup) Invalidate(email string) {
	c.mu.Lock()
	delete(c.items, email)
	c.mu.Unlock()
}

// Reset drops every cached profile, as on logout.
func (c *CachingLookup) Reset() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()
}
