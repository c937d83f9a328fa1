package fsmtest

import (
	"context"
	"slices"
	"sync"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Change is one recorded state change notification.
type Change[S, E comparable] struct {
	From  S
	To    S
	Event E
}

// Recorder is a listener that records every notification it receives.
// Register a single instance on one machine and read it back with Changes
// and Errors.
type Recorder[S, E comparable] struct {
	mu      sync.Mutex
	changes []Change[S, E]
	errors  []error
}

var _ fsm.Listener[string, string] = (*Recorder[string, string])(nil)

// NewRecorder creates an empty recorder.
func NewRecorder[S, E comparable]() *Recorder[S, E] {
	return &Recorder[S, E]{}
}

func (r *Recorder[S, E]) OnStateChanged(_ context.Context, from, to S, event E) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, Change[S, E]{From: from, To: to, Event: event})
}

func (r *Recorder[S, E]) OnError(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, err)
}

// Changes returns a copy of the recorded state changes in notification
// order.
func (r *Recorder[S, E]) Changes() []Change[S, E] {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.changes)
}

// Errors returns a copy of the recorded error notifications in order.
func (r *Recorder[S, E]) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.errors)
}

// LastChange returns the most recent state change, if any.
func (r *Recorder[S, E]) LastChange() (Change[S, E], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.changes) == 0 {
		var zero Change[S, E]

		return zero, false
	}

	return r.changes[len(r.changes)-1], true
}

// LastError returns the most recent error notification, if any.
func (r *Recorder[S, E]) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errors) == 0 {
		return nil
	}

	return r.errors[len(r.errors)-1]
}

// Reset clears everything recorded so far.
func (r *Recorder[S, E]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = nil
	r.errors = nil
}
