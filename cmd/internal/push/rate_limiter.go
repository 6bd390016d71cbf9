package push

import (
	"sync"
	"time"
)

// rateLimiter bounds inbound frames per connection: at most limit frames
// within the trailing window. Limit and window are normalized by NewGateway
// before construction, so no defaulting happens here.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   []time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window}
}

// allow records a frame at now and reports whether it fits the window.
// Timestamps arrive monotonically per connection, so expired entries always
// form a prefix of seen.
func (rl *rateLimiter) allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	expired := 0
	for expired < len(rl.seen) && !rl.seen[expired].After(cutoff) {
		expired++
	}
	rl.seen = rl.seen[expired:]

	if len(rl.seen) >= rl.limit {
		return false
	}
	rl.seen = append(rl.seen, now)
	return true
}
