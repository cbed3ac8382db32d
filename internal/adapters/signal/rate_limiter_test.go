package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients are limited independently")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Reserve("a")
	assert.True(t, ok)
	now = now.Add(4 * time.Second)
	ok, _ = rl.Reserve("a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, wait := rl.Reserve("a")
	assert.False(t, ok)
	assert.Equal(t, 5*time.Second, wait, "the oldest hit leaves the window first")

	now = now.Add(wait)
	ok, _ = rl.Reserve("a")
	assert.True(t, ok)
}

func TestRateLimiter_ForgetsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, 10*time.Second)
	rl.now = func() time.Time { return now }

	for _, id := range []ClientID{"a", "b", "c"} {
		assert.True(t, rl.Allow(id))
	}
	assert.Equal(t, 3, rl.Clients())

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("d"))
	assert.Equal(t, 1, rl.Clients(), "clients idle for a whole window are dropped")
}

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("a"))

	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
}

func TestSimplePolicy(t *testing.T) {
	conn := &WsSignalConn{}
	p := SimplePolicy{MaxMisses: 2}

	conn.misses.Store(1)
	assert.Equal(t, DropFrame, p.OnBackpressure("a", conn))
	conn.misses.Store(2)
	assert.Equal(t, Disconnect, p.OnBackpressure("a", conn))
	assert.Equal(t, DropFrame, SimplePolicy{}.OnBackpressure("a", conn))
}
