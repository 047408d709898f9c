// Package ratelimit provides a small token-bucket limiter, used by the
// rendezvous server to cap how fast a single process will accept new
// WebSocket connections.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a classic token bucket: it holds up to burst tokens,
// refilling at rate tokens/sec, and each accepted unit of work spends one
// or more tokens. Safe for concurrent use.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	available  float64
	lastRefill time.Time
}

// NewTokenBucket returns a bucket starting full, so an initial burst of up
// to burst connections is accepted immediately even before the first
// refill tick.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		burst:      float64(burst),
		available:  float64(burst),
		lastRefill: time.Now(),
	}
}

func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available += elapsed * b.rate
	if b.available > b.burst {
		b.available = b.burst
	}
	b.lastRefill = now
}

// Allow reports whether n tokens are currently available and, if so,
// spends them. relay/main.go calls this once per inbound WebSocket
// connection before upgrading it.
func (b *TokenBucket) Allow(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())
	if b.available < float64(n) {
		return false
	}
	b.available -= float64(n)
	return true
}

// Wait blocks, polling at a fixed interval, until n tokens become
// available.
func (b *TokenBucket) Wait(n int) {
	for !b.Allow(n) {
		time.Sleep(10 * time.Millisecond)
	}
}
