//go:build linux

package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/weiihann/primlat/harness"
)

// EventSignal is a counting semaphore on an eventfd in EFD_SEMAPHORE mode.
// Wait blocks the calling thread inside the kernel; it is the Go counterpart
// of a process-private POSIX semaphore.
type EventSignal struct {
	fd int
}

// NewEventSignal creates an eventfd semaphore with a zero count.
func NewEventSignal() (*EventSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	return &EventSignal{fd: fd}, nil
}

func (s *EventSignal) Post() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)

	for {
		n, err := unix.Write(s.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return fmt.Errorf("eventfd post: %w", err)
		}

		if n != len(buf) {
			return &harness.ShortIOError{Op: "eventfd post", Want: len(buf), Got: n}
		}

		return nil
	}
}

func (s *EventSignal) Wait() error {
	var buf [8]byte

	for {
		// The runtime's preemption signals interrupt the blocking read.
		n, err := unix.Read(s.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return fmt.Errorf("eventfd wait: %w", err)
		}

		if n != len(buf) {
			return &harness.ShortIOError{Op: "eventfd wait", Want: len(buf), Got: n}
		}

		return nil
	}
}

func (s *EventSignal) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("close eventfd: %w", err)
	}

	return nil
}

// NewSignal returns the kernel-blocking signal for this platform.
func NewSignal() (Signal, error) {
	return NewEventSignal()
}
