//go:build linux

package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// cpuSetSize mirrors CPU_SETSIZE.
const cpuSetSize = 1024

// firstAllowedCore returns a core the test process may run on; containers
// do not always grant core 0.
func firstAllowedCore(t *testing.T) int {
	t.Helper()

	var set unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &set))

	for cpu := 0; cpu < cpuSetSize; cpu++ {
		if set.IsSet(cpu) {
			return cpu
		}
	}

	t.Fatal("no allowed cpu")

	return -1
}

func TestLockAndPin(t *testing.T) {
	core := firstAllowedCore(t)

	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &before))

	release, err := LockAndPin(core)
	require.NoError(t, err)

	var pinned unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(0, &pinned))
	assert.Equal(t, 1, pinned.Count())
	assert.True(t, pinned.IsSet(core))

	release()
}

func TestPinInvalidCore(t *testing.T) {
	release, err := LockAndPin(-1)
	defer release()

	assert.ErrorIs(t, err, ErrInvalidCore)
}

func TestPinUnavailableCore(t *testing.T) {
	release, err := LockAndPin(cpuSetSize)
	defer release()

	assert.Error(t, err, "pinning outside the cpu set must fail")
}
