package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before a retry. Implementations must be
// safe for concurrent use; attempt starts at 1 for the first retry.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically with optional jitter.
// Formula: min(InitialInterval * Multiplier^(attempt-1) * (1 ± JitterFactor), MaxInterval).
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	max := e.MaxInterval
	if max == 0 {
		max = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	// Zero jitter stays deterministic, which tests rely on.
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}

// FixedBackoff waits the same interval between every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoffStrategy returns the retry curve used when none is configured:
// 1s doubling up to 30s with 10% jitter.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
