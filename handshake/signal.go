package handshake

import (
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by a Signal used after Close.
var ErrClosed = errors.New("handshake: signal closed")

// Signal is a one-directional counting signal between two threads. Post
// increments the count; Wait blocks until the count is positive and
// decrements it.
type Signal interface {
	Post() error
	Wait() error
	Close() error
}

// ChanSignal is a counting semaphore built on a buffered channel. Waiters
// park in the Go scheduler instead of the kernel, so it is meant for tests
// and for platforms without eventfd.
type ChanSignal struct {
	c      chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewChanSignal returns a ChanSignal that holds up to capacity pending posts.
func NewChanSignal(capacity int) *ChanSignal {
	if capacity < 1 {
		capacity = 1
	}

	return &ChanSignal{
		c:    make(chan struct{}, capacity),
		done: make(chan struct{}),
	}
}

func (s *ChanSignal) Post() error {
	if s.closed.Load() {
		return ErrClosed
	}

	select {
	case s.c <- struct{}{}:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *ChanSignal) Wait() error {
	select {
	case <-s.c:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *ChanSignal) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}

	return nil
}
