// Package backoff computes retry delays using capped exponential growth
// plus a small random jitter.
package backoff

import (
	"math/rand/v2"
	"time"
)

const (
	// DefaultBaseDelay is the delay before the first retry, without jitter
	DefaultBaseDelay = 300 * time.Millisecond
	// DefaultMaxDelay caps any single computed delay
	DefaultMaxDelay = 30 * time.Second
	// DefaultMaxExponent caps the doubling so attempt 20 does not overflow
	DefaultMaxExponent = 8

	defaultJitterMin = 50 * time.Millisecond
	defaultJitterMax = 150 * time.Millisecond
)

// Policy describes how long to wait before each retry
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxExponent int
	JitterMin   time.Duration
	JitterMax   time.Duration

	// jitter returns a value in [0, n). Nil uses math/rand/v2.
	jitter func(n int64) int64
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxExponent: DefaultMaxExponent,
		JitterMin:   defaultJitterMin,
		JitterMax:   defaultJitterMax,
	}
}

// New returns the default policy with the given base delay
func New(base time.Duration) Policy {
	p := DefaultPolicy()
	if base > 0 {
		p.BaseDelay = base
	}
	return p
}

// WithJitterSource returns a copy of p that draws jitter from fn.
// Tests use it to make Delay deterministic.
func (p Policy) WithJitterSource(fn func(n int64) int64) Policy {
	p.jitter = fn
	return p
}

// Delay returns the wait before retry number attempt (1-based):
// BaseDelay * 2^(attempt-1), exponent capped at MaxExponent, plus jitter in
// [JitterMin, JitterMax], capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exp := attempt - 1
	if p.MaxExponent > 0 && exp > p.MaxExponent {
		exp = p.MaxExponent
	}
	if exp > 30 {
		exp = 30
	}

	delay := p.BaseDelay * time.Duration(int64(1)<<uint(exp))
	delay += p.jitterAmount()

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = p.BaseDelay
	}
	return delay
}

func (p Policy) jitterAmount() time.Duration {
	lo, hi := p.JitterMin, p.JitterMax
	if hi < lo {
		lo, hi = hi, lo
	}
	span := int64(hi - lo)
	if span <= 0 {
		return lo
	}

	draw := rand.Int64N
	if p.jitter != nil {
		draw = p.jitter
	}
	return lo + time.Duration(draw(span+1))
}
