// Package harness runs the warmup/measurement loop shared by every primlat
// benchmark and holds the samples it collects.
package harness

// Kind names the OS primitive a run measures.
type Kind string

// Measured primitives.
const (
	KindOpen               Kind = "open"
	KindClose              Kind = "close"
	KindRead               Kind = "read"
	KindWrite              Kind = "write"
	KindPipeRead           Kind = "pipe_read"
	KindPipeWrite          Kind = "pipe_write"
	KindSemaphoreRoundTrip Kind = "semaphore_roundtrip"
	KindKernelBlockedTime  Kind = "kernel_blocked_time"
	KindSpinlock           Kind = "spinlock"
)

// Kinds returns every primitive kind in the order primlat measures them.
func Kinds() []Kind {
	return []Kind{
		KindOpen, KindClose, KindWrite, KindRead,
		KindPipeWrite, KindPipeRead,
		KindSemaphoreRoundTrip, KindKernelBlockedTime,
		KindSpinlock,
	}
}

// Run is one measurement run: the samples of a single primitive in iteration
// order. A complete run holds exactly Iterations samples; a run ended by a
// fatal error is Truncated and holds fewer.
type Run struct {
	Kind       Kind      `json:"kind"`
	Iterations int       `json:"iterations"`
	Warmup     int       `json:"warmup"`
	Samples    []float64 `json:"-"`
	Truncated  bool      `json:"truncated"`
}

// NewRun allocates a run with room for all of its samples.
func NewRun(kind Kind, iterations, warmup int) *Run {
	return &Run{
		Kind:       kind,
		Iterations: iterations,
		Warmup:     warmup,
		Samples:    make([]float64, 0, iterations),
	}
}

// Complete reports whether every recorded iteration produced a sample.
func (r *Run) Complete() bool {
	return !r.Truncated && len(r.Samples) == r.Iterations
}
