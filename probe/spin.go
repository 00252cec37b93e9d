package probe

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/weiihann/primlat/clock"
)

// SpinLock is a test-and-set lock that busy-waits in user space.
type SpinLock struct {
	state atomic.Uint32
}

func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *SpinLock) Unlock() {
	l.state.Store(0)
}

// UserSpin measures uncontended acquire+release pairs of a SpinLock. It
// stands in for the kernel module when that is not loaded.
type UserSpin struct {
	Iterations int
	Clock      clock.Clock
}

// Measure runs Iterations acquire+release pairs and returns one duration per
// pair.
func (u UserSpin) Measure() ([]uint64, error) {
	if u.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", u.Iterations)
	}

	clk := u.Clock
	if clk == nil {
		clk = clock.Mono{}
	}

	var l SpinLock

	values := make([]uint64, u.Iterations)
	for i := range values {
		t0 := clk.Now()
		l.Lock()
		l.Unlock()
		t1 := clk.Now()

		values[i] = uint64(clock.Elapsed(t0, t1))
	}

	return values, nil
}

// Open runs a fresh measurement and renders it like the kernel module does.
func (u UserSpin) Open() (io.ReadCloser, error) {
	values, err := u.Measure()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(values) * 4)

	if err := Render(&buf, values); err != nil {
		return nil, err
	}

	return io.NopCloser(&buf), nil
}
