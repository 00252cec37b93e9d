// Package clocktest provides a scripted clock.Clock for tests.
package clocktest

import "github.com/weiihann/primlat/clock"

// Replay is a scripted Clock. Every pair of consecutive Now calls is
// separated by the next delta, so a loop that brackets each iteration with
// two Now calls observes exactly the given elapsed sequence.
type Replay struct {
	stamps []clock.Timestamp
	next   int
}

// NewReplay builds a Replay producing the given per-iteration deltas (ns).
func NewReplay(deltas ...int64) *Replay {
	stamps := make([]clock.Timestamp, 0, 2*len(deltas))

	var t clock.Timestamp
	for _, d := range deltas {
		stamps = append(stamps, t, t+clock.Timestamp(d))
		// Leave a gap between iterations so untimed work is visibly excluded.
		t += clock.Timestamp(d) + 1000
	}

	return &Replay{stamps: stamps}
}

// Now returns the next scripted reading. Once the script is exhausted the
// last reading repeats.
func (r *Replay) Now() clock.Timestamp {
	if len(r.stamps) == 0 {
		return 0
	}

	if r.next >= len(r.stamps) {
		return r.stamps[len(r.stamps)-1]
	}

	t := r.stamps[r.next]
	r.next++

	return t
}
