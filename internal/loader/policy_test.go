package loader

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 15*time.Second, p.InitialInterval)
	assert.Equal(t, 1.5, p.Multiplier)
	assert.Equal(t, 0.5, p.RandomizationFactor)
	assert.Equal(t, 900*time.Second, p.MaxInterval)
	assert.Equal(t, 1800*time.Second, p.MaxElapsedTime)
}

// Waits never exceed MaxInterval and the schedule stops within MaxElapsedTime.
func TestPolicy_ScheduleBounds(t *testing.T) {
	for run := 0; run < 50; run++ {
		clock := &manualClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
		p := DefaultPolicy()
		p.Clock = clock
		b := p.NewBackOff()

		var total time.Duration
		stopped := false
		for i := 0; i < 1000; i++ {
			next := b.NextBackOff()
			if next == backoff.Stop {
				stopped = true
				break
			}
			assert.LessOrEqual(t, next, p.MaxInterval)
			assert.Positive(t, next)
			clock.Advance(next)
			total += next
		}

		require.True(t, stopped, "schedule must terminate")
		assert.LessOrEqual(t, total, p.MaxElapsedTime)
	}
}

func TestPolicy_FirstWaitWithinJitter(t *testing.T) {
	p := DefaultPolicy()
	p.Clock = &manualClock{now: time.Now()}

	for i := 0; i < 100; i++ {
		next := p.NewBackOff().NextBackOff()
		assert.GreaterOrEqual(t, next, 7500*time.Millisecond)
		assert.LessOrEqual(t, next, 22500*time.Millisecond)
	}
}

func TestCappedBackOff(t *testing.T) {
	c := &cappedBackOff{BackOff: backoff.NewConstantBackOff(time.Minute), max: time.Second}
	assert.Equal(t, time.Second, c.NextBackOff())

	stop := &cappedBackOff{BackOff: &backoff.StopBackOff{}, max: time.Second}
	assert.Equal(t, backoff.Stop, stop.NextBackOff())
}
