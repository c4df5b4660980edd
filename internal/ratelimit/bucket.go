// Package ratelimit provides a deterministic token bucket used to cap the
// signaling-message rate of each websocket connection.
package ratelimit

import (
	"sync"
	"time"
)

// One token is 1e9 nano-tokens, so a rate of R tokens/sec refills exactly R
// nano-tokens per elapsed nanosecond. Fixed-point arithmetic keeps the bucket
// exact under a fake clock.
const nanosPerToken int64 = int64(time.Second)

// Bucket is a token bucket that refills at an integer rate (tokens/sec)
// against a provided Clock. Each Allow call costs one token.
type Bucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // nano-tokens
	rate     int64 // tokens/sec, which is also nano-tokens/ns

	available int64 // nano-tokens
	last      time.Time
}

// NewBucket returns a full bucket holding up to burst tokens that refills at
// perSecond tokens/sec. A nil clock means the system clock. A non-positive
// burst or rate yields a bucket that rejects everything once drained.
func NewBucket(clock Clock, burst, perSecond int64) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	if burst < 0 {
		burst = 0
	}
	if perSecond < 0 {
		perSecond = 0
	}
	return &Bucket{
		clock:     clock,
		capacity:  burst * nanosPerToken,
		rate:      perSecond,
		available: burst * nanosPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.available < nanosPerToken {
		return false
	}
	b.available -= nanosPerToken
	return true
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards. Move the reference point without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.rate <= 0 || b.capacity <= 0 {
		return
	}
	if b.available >= b.capacity {
		b.available = b.capacity
		return
	}

	// Clamp before multiplying so elapsed*rate cannot overflow.
	need := b.capacity - b.available
	if elapsed.Nanoseconds() >= need/b.rate {
		b.available = b.capacity
		return
	}
	b.available += elapsed.Nanoseconds() * b.rate
}
