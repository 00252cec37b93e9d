//go:build linux

package handshake

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// sleepGap blocks the calling thread in nanosleep. time.Sleep parks the
// goroutine on the runtime timer, which rounds sub-millisecond sleeps up to
// about a millisecond.
func sleepGap(d time.Duration) {
	if d <= 0 {
		return
	}

	ts := unix.NsecToTimespec(int64(d))
	for {
		var rem unix.Timespec

		err := unix.Nanosleep(&ts, &rem)
		if !errors.Is(err, unix.EINTR) {
			return
		}

		ts = rem
	}
}
