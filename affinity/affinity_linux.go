//go:build linux

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pin(core int) error {
	var set unix.CPUSet
	set.Set(core)

	// pid 0 is the calling thread, not the whole process.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity core %d: %w", core, err)
	}

	return nil
}

func save() (func() error, error) {
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}

	return func() error {
		return unix.SchedSetaffinity(0, &prev)
	}, nil
}
