// Package pcancel implements the pipeline's cancellation primitive: a
// source/token pair with register-callback semantics, distinct from
// context.Context because callers need to observe "already cancelled" and
// register late callbacks that still fire synchronously.
package pcancel

import "sync"

// Token is the read side of a cancellation source.
type Token interface {
	// IsCancelled reports whether the source has been cancelled.
	IsCancelled() bool
	// Register runs cb when the source cancels. If the source is already
	// cancelled, cb runs synchronously, on the calling goroutine, before
	// Register returns. Otherwise cb runs on whichever goroutine calls
	// Cancel(), in registration order relative to other callbacks
	// registered before that Cancel() call.
	Register(cb func())
}

// Source produces a Token and can cancel it. Cancel is idempotent: the
// second and later calls are no-ops.
type Source struct {
	mu        sync.Mutex
	cancelled bool
	callbacks []func()
	children  []*Source
}

// NewSource creates a live (not yet cancelled) cancellation source.
func NewSource() *Source {
	return &Source{}
}

// Token returns the read-only view of this source.
func (s *Source) Token() Token {
	return (*token)(s)
}

// Cancel transitions the source to cancelled and fires every registered
// callback, in registration order, on the calling goroutine. Idempotent:
// calling it a second time is a no-op. Cancelling a parent source cancels
// every child created via Child(); children never propagate back up.
func (s *Source) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	cbs := s.callbacks
	s.callbacks = nil
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
	for _, c := range children {
		c.Cancel()
	}
}

// Child returns a new source that cancels automatically when s cancels.
// If s is already cancelled, the child is created already-cancelled.
func (s *Source) Child() *Source {
	child := NewSource()

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		child.Cancel()
		return child
	}
	s.children = append(s.children, child)
	s.mu.Unlock()

	return child
}

type token Source

func (t *token) IsCancelled() bool {
	s := (*Source)(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (t *token) Register(cb func()) {
	if cb == nil {
		return
	}
	s := (*Source)(t)
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		cb()
		return
	}
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}
