//go:build !linux

package perfcounter

// KernelClock is unavailable off linux.
type KernelClock struct{ Nop }

// Open always fails off linux.
func Open() (*KernelClock, error) {
	return nil, ErrUnsupported
}
