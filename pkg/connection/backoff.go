package connection

import (
	"math/rand/v2"
	"time"
)

// Default reconnection policy values.
const (
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps every delay.
	MaxBackoff = 60 * time.Second

	// DefaultMaxAttempts is the number of dial attempts before giving up.
	DefaultMaxAttempts = 10
)

// maxShift is the largest exponent for which base<<attempt can be
// computed on an int64 without losing the sign bit.
const maxShift = 62

// NextDelay returns min(limit, base * 2^attempt).
//
// It is total: a negative attempt counts as zero, a non-positive base or
// limit yields zero, and large attempts saturate at limit instead of
// overflowing.
func NextDelay(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 || limit <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= maxShift || base > limit>>uint(attempt) {
		return limit
	}
	d := base << uint(attempt)
	if d > limit {
		return limit
	}
	return d
}

// Policy is an immutable reconnection policy. The zero value makes a
// single attempt with no delay.
type Policy struct {
	// Initial is the base delay.
	Initial time.Duration

	// Max caps every delay, jitter included.
	Max time.Duration

	// MaxAttempts is the total number of dial attempts; 0 and 1 both
	// mean one attempt.
	MaxAttempts int

	// Jitter is the maximum extra delay as a fraction of the base delay,
	// in [0, 1]. Zero disables jitter.
	Jitter float64
}

// DefaultPolicy returns the service default policy.
func DefaultPolicy() Policy {
	return Policy{
		Initial:     InitialBackoff,
		Max:         MaxBackoff,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Delay returns the base delay (without jitter) after the given number of
// failed attempts.
func (p Policy) Delay(attempt int) time.Duration {
	return NextDelay(attempt, p.Initial, p.Max)
}

// Attempts returns the effective attempt budget (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// jittered applies the jitter fraction to d using r in [0, 1) and caps
// the result at Max.
func (p Policy) jittered(d time.Duration, r float64) time.Duration {
	j := p.Jitter
	if j <= 0 || d <= 0 {
		return d
	}
	if j > 1 {
		j = 1
	}
	d += time.Duration(float64(d) * j * r)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// next returns the jittered delay after attempt failures.
func (p Policy) next(attempt int) time.Duration {
	return p.jittered(p.Delay(attempt), rand.Float64())
}

// BackoffSequence returns the base delays for the first n retries of p.
func BackoffSequence(p Policy, n int) []time.Duration {
	seq := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		seq = append(seq, p.Delay(i))
	}
	return seq
}
