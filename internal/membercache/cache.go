package membercache

import (
	"context"
	"sync"
	"time"
)

// Loader fetches a room's member ids from the store.
type Loader func(ctx context.Context, roomID string) ([]string, error)

type entry struct {
	uids []string
	exp  time.Time
}

// Cache keeps room member lists for push fan-out.
type Cache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	m    map[string]entry
	load Loader
	now  func() time.Time
}

func New(ttl time.Duration, load Loader) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{ttl: ttl, m: make(map[string]entry), load: load, now: time.Now}
}

func (c *Cache) Get(roomID string) ([]string, bool) {
	c.mu.RLock()
	e, ok := c.m[roomID]
	c.mu.RUnlock()
	if !ok || c.now().After(e.exp) {
		return nil, false
	}
	return e.uids, true
}

func (c *Cache) Set(roomID string, uids []string) {
	c.mu.Lock()
	c.m[roomID] = entry{uids: uids, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Invalidate(roomID string) {
	c.mu.Lock()
	delete(c.m, roomID)
	c.mu.Unlock()
}

// Members returns the cached list or loads and caches it.
func (c *Cache) Members(ctx context.Context, roomID string) ([]string, error) {
	if uids, ok := c.Get(roomID); ok {
		return uids, nil
	}
	uids, err := c.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	c.Set(roomID, uids)
	return uids, nil
}
