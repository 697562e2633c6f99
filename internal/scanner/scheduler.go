package scanner

import (
	"time"
)

// Scheduler drives the sampling loop. NextFrame runs fn once on the next
// frame tick and After runs fn once after d. Both return a cancel func that
// is safe to call more than once.
type Scheduler interface {
	NextFrame(fn func()) (cancel func())
	After(d time.Duration, fn func()) (cancel func())
}

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameScheduler ticks at a fixed interval.
type FrameScheduler struct {
	Interval time.Duration
}

func (f FrameScheduler) NextFrame(fn func()) func() {
	d := f.Interval
	if d <= 0 {
		d = DefaultFrameInterval
	}
	return f.After(d, fn)
}

func (FrameScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
