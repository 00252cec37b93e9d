// Package handshake implements the driver/worker rendezvous used to measure
// cross-core signalling: the driver posts a request, the worker wakes and
// posts an acknowledge, and one sample is recorded per cycle.
package handshake

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Phase is the protocol state.
type Phase uint32

// Protocol states.
const (
	PhaseWorkerStarting Phase = iota
	PhaseWorkerReady
	PhaseIdle
	PhaseRequested
	PhaseAcknowledged
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWorkerStarting:
		return "worker-starting"
	case PhaseWorkerReady:
		return "worker-ready"
	case PhaseIdle:
		return "idle"
	case PhaseRequested:
		return "requested"
	case PhaseAcknowledged:
		return "acknowledged"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", uint32(p))
	}
}

// Handshake is the state shared by the driver and the worker: a request
// signal, an acknowledge signal and a one-shot readiness event.
//
// Acknowledges never outnumber requests: the request counter is bumped
// before the request is posted and the acknowledge counter only after the
// worker has consumed a request.
type Handshake struct {
	request Signal
	ack     Signal

	ready     chan struct{}
	readyOnce sync.Once

	phase    atomic.Uint32
	aborted  atomic.Bool
	requests atomic.Uint64
	acks     atomic.Uint64

	mu        sync.Mutex
	active    bool // a worker is running
	closing   bool // Close was called while active
	closed    bool
	ackClosed bool
}

// New builds a Handshake over two signals. The Handshake owns them and
// closes them in Close.
func New(request, ack Signal) *Handshake {
	return &Handshake{
		request: request,
		ack:     ack,
		ready:   make(chan struct{}),
	}
}

// NewKernel builds a Handshake over two kernel-blocking signals.
func NewKernel() (*Handshake, error) {
	req, err := NewSignal()
	if err != nil {
		return nil, fmt.Errorf("request signal: %w", err)
	}

	ack, err := NewSignal()
	if err != nil {
		_ = req.Close()
		return nil, fmt.Errorf("acknowledge signal: %w", err)
	}

	return New(req, ack), nil
}

// Phase returns the current protocol state.
func (h *Handshake) Phase() Phase {
	return Phase(h.phase.Load())
}

// Counts returns the number of requests posted and acknowledges posted.
func (h *Handshake) Counts() (requests, acks uint64) {
	// Acks first: a concurrent cycle can only move requests ahead.
	acks = h.acks.Load()
	requests = h.requests.Load()

	return requests, acks
}

// Ready is closed once the worker is about to enter its first wait.
func (h *Handshake) Ready() <-chan struct{} {
	return h.ready
}

// Close releases both signals. While a worker is still running, for
// instance after a readiness timeout, the release is deferred until it exits
// so its descriptors are not reused under it. Teardown errors are reported
// but are not meant to fail a measurement.
func (h *Handshake) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active {
		h.closing = true

		return nil
	}

	return h.closeSignals()
}

// closeSignals must be called with mu held.
func (h *Handshake) closeSignals() error {
	if h.closed {
		return nil
	}

	h.closed = true

	errs := []error{h.request.Close()}
	if !h.ackClosed {
		h.ackClosed = true
		errs = append(errs, h.ack.Close())
	}

	return errors.Join(errs...)
}

func (h *Handshake) enter() {
	h.mu.Lock()
	h.active = true
	h.mu.Unlock()
}

func (h *Handshake) leave() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.active = false
	if h.closing {
		h.closing = false
		_ = h.closeSignals()
	}
}

// breakAck closes the acknowledge signal so that a driver blocked on it
// returns with an error.
func (h *Handshake) breakAck() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ackClosed {
		return nil
	}

	h.ackClosed = true

	return h.ack.Close()
}

func (h *Handshake) markReady() {
	h.readyOnce.Do(func() {
		h.phase.Store(uint32(PhaseWorkerReady))
		close(h.ready)
	})
}

// noteRequest records a request about to be posted. It runs outside the
// timed bracket.
func (h *Handshake) noteRequest() {
	h.requests.Add(1)
	h.phase.Store(uint32(PhaseRequested))
}

// noteAck records an acknowledge about to be posted.
func (h *Handshake) noteAck() {
	h.acks.Add(1)
	h.phase.Store(uint32(PhaseAcknowledged))
}

func (h *Handshake) noteIdle() {
	h.phase.Store(uint32(PhaseIdle))
}

func (h *Handshake) noteDone() {
	h.phase.Store(uint32(PhaseDone))
}

// abort tells the worker to stop and wakes it if it is blocked on a
// request. The wake-up request is not counted.
func (h *Handshake) abort() error {
	h.aborted.Store(true)

	return h.request.Post()
}

func (h *Handshake) isAborted() bool {
	return h.aborted.Load()
}
