//go:build linux

package handshake

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepGapHonoursMicroseconds(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	const (
		gap = 50 * time.Microsecond
		n   = 200
	)

	start := time.Now()
	for range n {
		sleepGap(gap)
	}
	avg := time.Since(start) / n

	assert.GreaterOrEqual(t, avg, gap)
	// The runtime timer would round each sleep up to about a millisecond.
	assert.Less(t, avg, 800*time.Microsecond)
}

func TestSleepGapZero(t *testing.T) {
	start := time.Now()
	sleepGap(0)
	assert.Less(t, time.Since(start), time.Millisecond)
}
