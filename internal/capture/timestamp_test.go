package capture

import (
	"testing"
	"time"
)

func TestTimestamper_StrictlyIncreasing(t *testing.T) {
	ts := NewTimestamper()

	// Frozen clock: every raw read returns the same millisecond.
	frozen := time.Unix(1700000000, 0)
	ts.SetClock(func() time.Time { return frozen })

	prev := int64(0)
	for i := 0; i < 100; i++ {
		got := ts.Next()
		if got <= prev {
			t.Fatalf("timestamp %d not greater than previous %d", got, prev)
		}
		prev = got
	}
}

func TestTimestamper_FollowsClock(t *testing.T) {
	ts := NewTimestamper()

	current := time.Unix(1700000000, 0)
	ts.SetClock(func() time.Time { return current })

	first := ts.Next()
	current = current.Add(100 * time.Millisecond)
	second := ts.Next()

	if second-first != 100 {
		t.Errorf("advance = %dms, want 100ms", second-first)
	}
}

func TestTimestamper_ClockGoingBackwards(t *testing.T) {
	ts := NewTimestamper()

	current := time.Unix(1700000000, 0)
	ts.SetClock(func() time.Time { return current })

	first := ts.Next()
	current = current.Add(-time.Second)
	second := ts.Next()

	if second <= first {
		t.Errorf("timestamp %d not greater than %d after clock step back", second, first)
	}
}
