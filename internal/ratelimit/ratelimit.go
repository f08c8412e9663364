// Package ratelimit bounds how often a caller may hit a surface. The event
// webhook is the main consumer: a busy group chat can deliver hundreds of
// messages a minute, and each one would otherwise reach the arbiter.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// Limiter is a per-key token bucket. Safe for concurrent use.
type Limiter struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}

	now func() time.Time
}

// New creates a limiter allowing a sustained rate of requests per second
// with the given burst capacity per key. A background goroutine evicts keys
// idle for ten minutes; call Close to stop it.
func New(rate float64, burst int) *Limiter {
	l := &Limiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.evictLoop()
	return l
}

// Allow consumes one token from key's bucket, reporting whether the request
// may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, lastAccess: now}
		return true
	}

	b.tokens += now.Sub(b.lastAccess).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastAccess = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Close stops the eviction goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.done) })
}

const idleThreshold = 10 * time.Minute

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleThreshold)
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
