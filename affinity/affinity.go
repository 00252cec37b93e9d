// Package affinity pins OS threads to a single logical CPU core so that a
// measurement is not disturbed by scheduler migration.
package affinity

import (
	"errors"
	"runtime"
)

var (
	// ErrUnsupported is returned on platforms without thread affinity.
	ErrUnsupported = errors.New("affinity: not supported on this platform")

	// ErrInvalidCore is returned for a negative core id.
	ErrInvalidCore = errors.New("affinity: invalid core id")
)

// Pin restricts the calling OS thread to core. The caller must already be
// locked to its thread (runtime.LockOSThread), otherwise the goroutine may
// move to an unpinned thread.
func Pin(core int) error {
	if core < 0 {
		return ErrInvalidCore
	}

	return pin(core)
}

// LockAndPin locks the calling goroutine to its OS thread and pins the thread
// to core. The returned release restores the thread's previous mask and
// unlocks it; it must be called even when err is non-nil. A pin failure is
// best-effort: the goroutine stays locked and measurement can proceed.
func LockAndPin(core int) (release func(), err error) {
	runtime.LockOSThread()

	restore, saveErr := save()
	if saveErr != nil {
		restore = func() error { return nil }
	}

	release = func() {
		_ = restore()
		runtime.UnlockOSThread()
	}

	return release, Pin(core)
}
