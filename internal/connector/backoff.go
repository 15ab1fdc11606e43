package connector

import "time"

// Backoff computes reconnect delays: base doubling per attempt up to a
// ceiling, with a bounded attempt count. No jitter; a single gateway
// process has no thundering-herd problem against four different platforms.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func NewBackoff(baseSec, capSec, attempts int) Backoff {
	if baseSec <= 0 {
		baseSec = 2
	}
	if capSec <= 0 {
		capSec = 60
	}
	if attempts <= 0 {
		attempts = 8
	}
	return Backoff{
		Base:        time.Duration(baseSec) * time.Second,
		Cap:         time.Duration(capSec) * time.Second,
		MaxAttempts: attempts,
	}
}

// Delay returns the wait before the given attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Exhausted reports whether the attempt budget is spent.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxAttempts
}
