// Package fsm is a small, generic finite-state-machine runner used by the
// pipeline orchestrator to drive a Load Session through its states.
package fsm

import (
	"context"
	"fmt"
	"sync"
)

// Transition describes a single edge in the FSM. Guard may reject the
// transition; Action performs the transition's side effect.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Machine is a strict FSM runner: firing an event with no matching
// transition from the current state is an error, not a no-op.
type Machine[S ~string, E ~string] struct {
	mu           sync.Mutex
	state        S
	index        map[string]Transition[S, E]
	onTransition func(from, to S, event E)
}

// New builds a Machine from its transition table. Duplicate (From, Event)
// pairs are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
	}
	return &Machine[S, E]{state: initial, index: idx}, nil
}

// State returns the machine's current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition installs a callback invoked, outside the machine's lock,
// after every transition Fire successfully completes. Only one callback may
// be installed at a time; a later call replaces an earlier one. Intended for
// a caller to wire per-transition observability (metrics, tracing) without
// the FSM runner itself depending on any particular sink.
func (m *Machine[S, E]) OnTransition(fn func(from, to S, event E)) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

// Fire attempts to apply an event atomically, running Guard then Action
// outside the lock so neither can block other callers of State.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.index[key(from, event)]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("invalid transition: state=%s event=%s", from, event)
	}
	to := t.To
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = to
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil {
		hook(from, to, event)
	}

	return to, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
