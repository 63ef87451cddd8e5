package signaling

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndGivesUp(t *testing.T) {
	b := backoff{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond, Budget: time.Hour}
	b.Reset()

	bases := []time.Duration{10, 20, 40, 40}
	for i, base := range bases {
		base *= time.Millisecond
		d, ok := b.Next()
		if !ok {
			t.Fatalf("attempt %d: gave up early", i)
		}
		if d < base || d > base+base/5 {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", i, d, base, base+base/5)
		}
	}

	b.Budget = time.Nanosecond
	time.Sleep(time.Millisecond)
	if _, ok := b.Next(); ok {
		t.Error("Next after budget: want give up")
	}

	b.Reset()
	b.Budget = time.Hour
	if d, _ := b.Next(); d > 12*time.Millisecond {
		t.Errorf("after Reset: got %v, want about %v", d, b.Initial)
	}
}
