package client

import "time"

const (
	DefaultBaseDelay = 1 * time.Second
	DefaultMaxDelay  = 10 * time.Second
)

// Backoff computes reconnect delays: min(Max, Base * 2^retries).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 1s..10s schedule.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

// Delay returns the wait before the retry that follows retries earlier
// consecutive failures.
func (b Backoff) Delay(retries int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	delay := b.Base
	for i := 0; i < retries; i++ {
		if b.Max > 0 && delay >= b.Max {
			break
		}
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}
