package transport

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: exponential growth from an initial
// delay up to a cap, with full jitter (spec §4.1: "initial 1 s, cap 30 s,
// full jitter").
type Backoff struct {
	Initial time.Duration
	Cap     time.Duration

	attempt int
}

// DefaultBackoff matches the specification's reconnect-loop parameters.
func DefaultBackoff() *Backoff {
	return &Backoff{Initial: 1 * time.Second, Cap: 30 * time.Second}
}

// Next returns the delay before the next attempt and advances the attempt
// counter. Full jitter: a uniform random value in [0, min(cap, initial*2^attempt)).
func (b *Backoff) Next() time.Duration {
	ceiling := b.Initial << b.attempt
	if ceiling <= 0 || ceiling > b.Cap {
		ceiling = b.Cap
	}
	b.attempt++
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// Reset clears the attempt counter, called after a successful connect.
func (b *Backoff) Reset() { b.attempt = 0 }
