package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(1, 3)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1, 1)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestTokensRefillOverTime(t *testing.T) {
	l := New(2, 2) // 2 tokens/sec
	defer l.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	l.now = func() time.Time { return base.Add(time.Second) }
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestRefillCapsAtBurst(t *testing.T) {
	l := New(10, 2)
	defer l.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	assert.True(t, l.Allow("a"))

	// Long idle period refills at most to capacity.
	l.now = func() time.Time { return base.Add(time.Hour) }
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestEvictIdleKeys(t *testing.T) {
	l := New(1, 1)
	defer l.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.Allow("stale")

	l.now = func() time.Time { return base.Add(idleThreshold + time.Minute) }
	l.evictIdle()

	l.mu.Lock()
	_, ok := l.buckets["stale"]
	l.mu.Unlock()
	assert.False(t, ok)
}
