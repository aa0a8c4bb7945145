package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually driven Clock. Sleep advances the fake time immediately
// instead of blocking, so retry loops run at full speed in tests while the
// total slept duration stays observable.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	naps  []time.Duration
}

// NewFake creates a fake clock positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now = f.now.Add(d)
		f.slept += d
	}
	f.naps = append(f.naps, d)
	return nil
}

// Advance moves the clock forward without counting as sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Slept returns the total duration passed to Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Naps returns every duration passed to Sleep, in call order.
func (f *Fake) Naps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.naps))
	copy(out, f.naps)
	return out
}
