package loader

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures the exponential backoff applied to each bulk batch.
type Policy struct {
	InitialInterval     time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration

	// Clock is used to measure elapsed time. Nil means the system clock.
	Clock backoff.Clock
}

// DefaultPolicy waits 15s, growing by 1.5x with ±50% jitter up to 15 minutes between
// attempts, and gives up once 30 minutes have elapsed.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     15 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxInterval:         900 * time.Second,
		MaxElapsedTime:      1800 * time.Second,
	}
}

// NewBackOff returns fresh retry state. Each batch gets its own.
func (p Policy) NewBackOff() backoff.BackOff {
	clock := p.Clock
	if clock == nil {
		clock = backoff.SystemClock
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: p.RandomizationFactor,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      p.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return &cappedBackOff{BackOff: b, max: p.MaxInterval}
}

// cappedBackOff clamps jittered waits so no single wait exceeds max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c *cappedBackOff) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if c.max > 0 && next > c.max {
		return c.max
	}
	return next
}
