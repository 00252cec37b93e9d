package harness

import (
	"errors"
	"fmt"
)

var (
	// ErrBackpressure marks a transient rejection (e.g. a full non-blocking
	// pipe). The loop drains and retries the same iteration.
	ErrBackpressure = errors.New("backpressure")

	// ErrIntegrity marks a data-integrity violation. It ends the run early;
	// the samples collected so far are kept.
	ErrIntegrity = errors.New("data integrity violation")
)

// ShortIOError reports a transfer that moved a different number of bytes
// than requested.
type ShortIOError struct {
	Op   string
	Want int
	Got  int
}

func (e *ShortIOError) Error() string {
	return fmt.Sprintf("short %s: %d of %d bytes", e.Op, e.Got, e.Want)
}

// Is makes every ShortIOError match ErrIntegrity.
func (e *ShortIOError) Is(target error) bool {
	return target == ErrIntegrity
}
