package signal

import (
	"sync"
	"time"
)

// RateLimiter caps how many utterances one client may push per interval.
// The websocket and the HTTP speak endpoint share one instance, so both
// surfaces count against the same window.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[ClientID][]time.Time // oldest first
	limit     int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[ClientID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether id may speak now and counts the attempt if so.
func (rl *RateLimiter) Allow(id ClientID) bool {
	ok, _ := rl.Reserve(id)
	return ok
}

// Reserve is Allow that also says how long a refused client has to wait.
// A nil limiter or a non-positive limit allows everything.
func (rl *RateLimiter) Reserve(id ClientID) (bool, time.Duration) {
	if rl == nil || rl.limit <= 0 {
		return true, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	hits := expire(rl.clients[id], now.Add(-rl.interval))
	if len(hits) >= rl.limit {
		rl.clients[id] = hits
		return false, hits[len(hits)-rl.limit].Add(rl.interval).Sub(now)
	}
	rl.clients[id] = append(hits, now)
	return true, 0
}

// Clients reports how many clients currently hold a window.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// sweepLocked forgets clients with no attempt inside the window, at most once per interval.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.interval {
		return
	}
	rl.lastSweep = now
	cutoff := now.Add(-rl.interval)
	for id, hits := range rl.clients {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(rl.clients, id)
		}
	}
}

// expire drops hits at or before cutoff, reusing the backing array.
func expire(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return append(hits[:0], hits[i:]...)
}
