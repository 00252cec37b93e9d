// Package sink writes sample sequences to their CSV artifacts and reads them
// back.
package sink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrOpen is returned when an artifact cannot be created.
var ErrOpen = errors.New("sink: cannot open artifact")

// Format is the textual layout of an artifact.
type Format int

const (
	// Lines writes one value per line with two decimals.
	Lines Format = iota
	// Joined writes every value on a single line, comma separated, with
	// eighteen decimals and no trailing newline.
	Joined
	// Auto is only valid for reading: Joined if the first line holds a comma.
	Auto
)

func (f Format) String() string {
	switch f {
	case Lines:
		return "lines"
	case Joined:
		return "joined"
	case Auto:
		return "auto"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "lines":
		return Lines, nil
	case "joined":
		return Joined, nil
	case "auto", "":
		return Auto, nil
	default:
		return 0, fmt.Errorf("unknown artifact format %q", s)
	}
}

// Artifact is an output file and its layout.
type Artifact struct {
	Path   string `json:"path"`
	Format Format `json:"-"`
}

// Write creates a.Path and encodes samples into it. A create failure matches
// ErrOpen; a later failure may leave a partial file behind.
func Write(a Artifact, samples []float64) error {
	f, err := os.Create(a.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}

	if err := Encode(f, a.Format, samples); err != nil {
		_ = f.Close()

		return fmt.Errorf("write %s: %w", a.Path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", a.Path, err)
	}

	return nil
}

// Encode writes samples to w in format.
func Encode(w io.Writer, format Format, samples []float64) error {
	bw := bufio.NewWriterSize(w, 64*1024)

	var buf []byte

	switch format {
	case Lines:
		for _, s := range samples {
			buf = strconv.AppendFloat(buf[:0], s, 'f', 2, 64)
			buf = append(buf, '\n')

			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	case Joined:
		for i, s := range samples {
			buf = buf[:0]
			if i > 0 {
				buf = append(buf, ',')
			}

			buf = strconv.AppendFloat(buf, s, 'f', 18, 64)

			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot encode format %s", format)
	}

	return bw.Flush()
}

// Decode parses an artifact body.
func Decode(r io.Reader, format Format) ([]float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if format == Auto {
		format = Lines

		first, _, _ := bytes.Cut(data, []byte("\n"))
		if bytes.IndexByte(first, ',') >= 0 {
			format = Joined
		}
	}

	var fields [][]byte

	switch format {
	case Lines:
		fields = bytes.Split(data, []byte("\n"))
	case Joined:
		fields = bytes.Split(data, []byte(","))
	default:
		return nil, fmt.Errorf("cannot decode format %s", format)
	}

	samples := make([]float64, 0, len(fields))
	for i, field := range fields {
		field = bytes.TrimSpace(field)
		if len(field) == 0 {
			continue
		}

		v, err := strconv.ParseFloat(string(field), 64)
		if err != nil {
			return samples, fmt.Errorf("value %d: %w", i+1, err)
		}

		samples = append(samples, v)
	}

	return samples, nil
}

// Read parses the artifact at path.
func Read(path string, format Format) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, err := Decode(f, format)
	if err != nil {
		return samples, fmt.Errorf("read %s: %w", path, err)
	}

	return samples, nil
}
