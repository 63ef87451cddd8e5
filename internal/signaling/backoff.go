package signaling

import (
	"math/rand/v2"
	"time"
)

// backoff yields exponentially growing delays with up to 20% jitter until
// Budget has elapsed since Reset. A zero Budget never gives up.
type backoff struct {
	Initial time.Duration
	Max     time.Duration
	Budget  time.Duration

	next  time.Duration
	start time.Time
}

var defaultBackoff = backoff{
	Initial: 250 * time.Millisecond,
	Max:     5 * time.Second,
	Budget:  30 * time.Second,
}

func (b *backoff) Reset() {
	b.next = b.Initial
	b.start = time.Now()
}

// Next returns the delay before the next attempt, or false once the budget
// is spent.
func (b *backoff) Next() (time.Duration, bool) {
	if b.Budget > 0 && time.Since(b.start) >= b.Budget {
		return 0, false
	}
	d := b.next
	b.next = min(2*b.next, b.Max)
	return d + time.Duration(rand.Int64N(int64(d)/5+1)), true
}
