// Package probe consumes spinlock latency samples produced by a kernel
// module through a read-once virtual file, and provides a user-space
// stand-in producing the same format.
package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/weiihann/primlat/harness"
)

// DefaultProcPath is where the kernel module publishes its samples.
const DefaultProcPath = "/proc/spinlock_kernel"

// Source yields a fresh sample sequence on every Open: each access re-runs
// the measurement.
type Source interface {
	Open() (io.ReadCloser, error)
}

// ProcFile reads the kernel module's virtual file.
type ProcFile struct {
	Path string
}

func (p ProcFile) Open() (io.ReadCloser, error) {
	path := p.Path
	if path == "" {
		path = DefaultProcPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open probe: %w", err)
	}

	return f, nil
}

// Parse reads up to n newline-delimited nanosecond values from r. It returns
// the values read so far together with an error matching
// harness.ErrIntegrity when the sequence is shorter than n or a line is not
// an unsigned integer.
func Parse(r io.Reader, n int) ([]uint64, error) {
	values := make([]uint64, 0, n)

	sc := bufio.NewScanner(r)
	for len(values) < n && sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		v, err := strconv.ParseUint(string(line), 10, 64)
		if err != nil {
			return values, fmt.Errorf("%w: line %d: %q is not a sample", harness.ErrIntegrity, len(values)+1, line)
		}

		values = append(values, v)
	}

	if err := sc.Err(); err != nil {
		return values, fmt.Errorf("read probe: %w", err)
	}

	if len(values) < n {
		return values, fmt.Errorf("%w: probe produced %d of %d samples", harness.ErrIntegrity, len(values), n)
	}

	return values, nil
}

// Collect opens src once and parses n values from it.
func Collect(src Source, n int) ([]uint64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}

	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Parse(rc, n)
}

// Render writes values in the probe's text format.
func Render(w io.Writer, values []uint64) error {
	bw := bufio.NewWriter(w)

	var buf []byte
	for _, v := range values {
		buf = strconv.AppendUint(buf[:0], v, 10)
		buf = append(buf, '\n')

		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}

	return bw.Flush()
}
