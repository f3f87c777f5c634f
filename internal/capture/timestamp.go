package capture

import (
	"sync"
	"time"
)

// Timestamper issues strictly increasing millisecond timestamps for detector
// calls. Wall-clock reads at 15 FPS can repeat a millisecond value; the
// detector rejects non-increasing timestamps, so repeats are bumped forward.
type Timestamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTimestamper creates a Timestamper backed by the system clock.
func NewTimestamper() *Timestamper {
	return &Timestamper{now: time.Now}
}

// Next returns a millisecond timestamp strictly greater than any previously
// returned value.
func (t *Timestamper) Next() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ms := t.now().UnixMilli()
	if ms <= t.last {
		ms = t.last + 1
	}
	t.last = ms
	return ms
}

// SetClock replaces the time source, for tests.
func (t *Timestamper) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
