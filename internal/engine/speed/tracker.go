// Package speed turns a stream of byte counts into a smoothed throughput estimate.
package speed

import (
	"math"
	"time"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

// Estimate is the tracker's current view of throughput.
type Estimate struct {
	BytesPerSec int64 // types.SpeedUnknown until the first sample
	Samples     int   // samples currently in the window
}

// Tracker samples throughput once per interval and reports the raw sample
// until the window fills, then the window mean. Between ticks the previous
// estimate is repeated. A Tracker is not safe for concurrent use.
type Tracker struct {
	interval time.Duration
	capacity int

	started   bool
	lastTick  time.Time
	sinceTick int64
	window    []float64
	current   Estimate
}

// New returns a tracker; non-positive arguments fall back to the defaults.
func New(interval time.Duration, window int) *Tracker {
	if interval <= 0 {
		interval = types.SpeedSampleInterval
	}
	if window <= 0 {
		window = types.SpeedWindowSize
	}
	return &Tracker{
		interval: interval,
		capacity: window,
		window:   make([]float64, 0, window),
	}
}

// Reset forgets all samples and restarts the tick clock at now.
func (t *Tracker) Reset(now time.Time) {
	t.started = true
	t.lastTick = now
	t.sinceTick = 0
	t.window = t.window[:0]
	t.current = Estimate{BytesPerSec: types.SpeedUnknown}
}

// Observe records n bytes received at now and returns the current estimate.
func (t *Tracker) Observe(n int64, now time.Time) Estimate {
	if !t.started {
		t.Reset(now)
	}
	if n > 0 {
		t.sinceTick += n
	}

	elapsed := now.Sub(t.lastTick)
	if elapsed < t.interval {
		return t.current
	}

	sample := float64(t.sinceTick) / elapsed.Seconds()
	t.sinceTick = 0
	t.lastTick = now

	if len(t.window) == t.capacity {
		copy(t.window, t.window[1:])
		t.window = t.window[:t.capacity-1]
	}
	t.window = append(t.window, sample)

	reported := sample
	if len(t.window) == t.capacity {
		var sum float64
		for _, s := range t.window {
			sum += s
		}
		reported = sum / float64(len(t.window))
	}

	t.current = Estimate{
		BytesPerSec: int64(math.Round(reported)),
		Samples:     len(t.window),
	}
	return t.current
}

// Current returns the last estimate without recording anything.
func (t *Tracker) Current() Estimate {
	return t.current
}
