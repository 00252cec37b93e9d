//go:build !linux

package handshake

// NewSignal returns the best available signal for this platform. Without
// eventfd the waiters park in the Go scheduler.
func NewSignal() (Signal, error) {
	return NewChanSignal(1024), nil
}
