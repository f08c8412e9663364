package onebot

import (
	"sync"
	"time"

	"github.com/ashita-ai/kehai/internal/status"
)

// statusCache is a short-TTL in-memory cache for user presence reads. It
// bounds call volume against the backend; reconciliation checks bypass it
// because they must observe fresh state.
type statusCache struct {
	mu      sync.RWMutex
	entries map[int64]cachedStatus
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

type cachedStatus struct {
	st        status.Status
	expiresAt time.Time
}

// newStatusCache creates a cache with the given TTL.
// Call close to stop the background eviction goroutine.
func newStatusCache(ttl time.Duration) *statusCache {
	c := &statusCache{
		entries: make(map[int64]cachedStatus),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// get returns the cached presence and true if a valid entry exists.
func (c *statusCache) get(userID int64) (status.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return status.Status{}, false
	}
	return entry.st, true
}

// set stores a presence read with the configured TTL.
func (c *statusCache) set(userID int64, st status.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = cachedStatus{st: st, expiresAt: time.Now().Add(c.ttl)}
}

// invalidate drops a single entry, used after a confirmed push so the next
// read of the agent's own presence cannot serve the pre-push value.
func (c *statusCache) invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// evictLoop removes expired entries periodically so the map does not grow
// with every distinct user ever queried.
func (c *statusCache) evictLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

// close stops the eviction goroutine. Safe to call more than once.
func (c *statusCache) close() {
	c.once.Do(func() { close(c.done) })
}
