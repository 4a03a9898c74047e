package identity

import (
	"context"
	"sync"
	"time"

	"github.com/voicedrop/backend/internal/models"
)

// HandleResolver resolves profile handles to accounts.
type HandleResolver interface {
	FindByHandle(ctx context.Context, handle string) (models.User, error)
}

type cacheEntry struct {
	user    models.User
	expires time.Time
}

// CachingResolver wraps another HandleResolver with a TTL-based in-memory
// cache. Only successful lookups are cached; misses always reach the base
// resolver so a freshly registered handle is visible immediately.
type CachingResolver struct {
	base HandleResolver
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingResolver returns a HandleResolver that caches lookups for the
// provided TTL.
func NewCachingResolver(base HandleResolver, ttl time.Duration) *CachingResolver {
	if base == nil {
		panic("identity: base resolver must not be nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingResolver{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// FindByHandle returns the cached account when available, otherwise it
// delegates to the underlying resolver and stores the result.
func (c *CachingResolver) FindByHandle(ctx context.Context, handle string) (models.User, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[handle]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.FindByHandle(ctx, handle)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.items[handle] = cacheEntry{user: user, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return user, nil
}
