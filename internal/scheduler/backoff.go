package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff describes a capped exponential retry schedule.
type Backoff struct {
	Base        time.Duration // first delay
	Factor      float64       // growth per attempt
	Max         time.Duration // ceiling for a single delay
	MaxAttempts int           // 0 means unlimited
}

// DefaultBackoff is the registration retry schedule: 100ms growing by 1.27
// per attempt, twelve attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        100 * time.Millisecond,
		Factor:      1.27,
		Max:         5 * time.Second,
		MaxAttempts: 12,
	}
}

// Sequence yields successive delays of a Backoff.
type Sequence struct {
	eb          *backoff.ExponentialBackOff
	attempts    int
	maxAttempts int
}

// Start returns a fresh delay sequence.
func (b Backoff) Start() *Sequence {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Base
	eb.Multiplier = b.Factor
	eb.RandomizationFactor = 0
	eb.MaxInterval = b.Max
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = backoff.DefaultMaxInterval
	}
	eb.Reset()
	return &Sequence{eb: eb, maxAttempts: b.MaxAttempts}
}

// Next returns the next delay. ok is false once MaxAttempts delays have
// been handed out.
func (s *Sequence) Next() (delay time.Duration, ok bool) {
	if s.maxAttempts > 0 && s.attempts >= s.maxAttempts {
		return 0, false
	}
	s.attempts++
	d := s.eb.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// Attempts returns how many delays have been handed out.
func (s *Sequence) Attempts() int {
	return s.attempts
}

// Exhausted reports whether the next call to Next would fail.
func (s *Sequence) Exhausted() bool {
	return s.maxAttempts > 0 && s.attempts >= s.maxAttempts
}

// Reset restarts the sequence from Base.
func (s *Sequence) Reset() {
	s.attempts = 0
	s.eb.Reset()
}
