//go:build linux

package perfcounter

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/weiihann/primlat/harness"
)

// KernelClock is the kernel-mode cpu-clock counter of one thread.
type KernelClock struct {
	fd int
}

// Open creates a disabled kernel-mode cpu-clock counter for the calling
// thread. Call it on the thread to be observed, after
// runtime.LockOSThread.
func Open() (*KernelClock, error) {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_SOFTWARE,
		Config: unix.PERF_COUNT_SW_CPU_CLOCK,
		Size:   uint32(binary.Size(unix.PerfEventAttr{})),
		Bits:   unix.PerfBitDisabled | unix.PerfBitExcludeUser | unix.PerfBitExcludeHv,
	}

	fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("perf_event_open: %w (check /proc/sys/kernel/perf_event_paranoid)", err)
		}

		return nil, fmt.Errorf("perf_event_open: %w", err)
	}

	return &KernelClock{fd: fd}, nil
}

func (k *KernelClock) ioctl(req uint, name string) error {
	if err := unix.IoctlSetInt(k.fd, req, 0); err != nil {
		return fmt.Errorf("ioctl(%s): %w", name, err)
	}

	return nil
}

func (k *KernelClock) Reset() error {
	return k.ioctl(unix.PERF_EVENT_IOC_RESET, "PERF_EVENT_IOC_RESET")
}

func (k *KernelClock) Enable() error {
	return k.ioctl(unix.PERF_EVENT_IOC_ENABLE, "PERF_EVENT_IOC_ENABLE")
}

func (k *KernelClock) Disable() error {
	return k.ioctl(unix.PERF_EVENT_IOC_DISABLE, "PERF_EVENT_IOC_DISABLE")
}

// Read returns the accumulated count in nanoseconds.
func (k *KernelClock) Read() (uint64, error) {
	var buf [8]byte

	for {
		n, err := unix.Read(k.fd, buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return 0, fmt.Errorf("read perf event fd: %w", err)
		}

		if n != len(buf) {
			return 0, &harness.ShortIOError{Op: "perf counter read", Want: len(buf), Got: n}
		}

		return binary.NativeEndian.Uint64(buf[:]), nil
	}
}

func (k *KernelClock) Close() error {
	if err := unix.Close(k.fd); err != nil {
		return fmt.Errorf("close perf event fd: %w", err)
	}

	return nil
}
