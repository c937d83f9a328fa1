package fsm

import (
	"errors"
	"fmt"
)

// Predefined error types. The typed wrappers below carry the state/event pair
// of the failed operation and unwrap to these sentinels, so callers can match
// with errors.Is or pull the pair out with errors.As.
var (
	// ErrNotStarted indicates an event was fired before Start.
	ErrNotStarted = errors.New("machine not started")
	// ErrNoTransition indicates no registered transition matched the event
	// and no default handler was set.
	ErrNoTransition = errors.New("no valid transition found")
	// ErrNoTimerService indicates a scheduling API was called on a machine
	// constructed without a timer service.
	ErrNoTimerService = errors.New("no timer service configured")
	// ErrCallbackPanic indicates a guard, action, handler, or listener
	// panicked while the machine was driving it.
	ErrCallbackPanic = errors.New("callback panic")

	// ErrDefinitionNameRequired indicates that a definition name is required.
	ErrDefinitionNameRequired = errors.New("definition name is required")
	// ErrInitialStateRequired indicates that an initial state is required.
	ErrInitialStateRequired = errors.New("initial state is required")
	// ErrStateRequired indicates that at least one state is required.
	ErrStateRequired = errors.New("at least one state is required")
	// ErrStateNameRequired indicates that a state name is required.
	ErrStateNameRequired = errors.New("state name is required")
	// ErrDuplicateStateName indicates that a duplicate state name was found.
	ErrDuplicateStateName = errors.New("duplicate state name")
	// ErrEventRequired indicates that a transition event is required.
	ErrEventRequired = errors.New("transition event is required")
	// ErrUnknownState indicates a reference to a state the definition does
	// not declare.
	ErrUnknownState = errors.New("state not declared in definition")
	// ErrUnknownGuard indicates a guard name with no registered
	// implementation.
	ErrUnknownGuard = errors.New("guard not registered")
	// ErrUnknownAction indicates an action name with no registered
	// implementation.
	ErrUnknownAction = errors.New("action not registered")
	// ErrUnknownHandler indicates a handler name with no registered
	// implementation.
	ErrUnknownHandler = errors.New("handler not registered")
	// ErrInvalidDelay indicates a negative delay or a non-positive period.
	ErrInvalidDelay = errors.New("invalid delay or period")
)

// NoTransitionError reports the state/event pair for which resolution found
// no guard-passing transition and no default handler.
type NoTransitionError[S, E comparable] struct {
	State S
	Event E
}

func (e *NoTransitionError[S, E]) Error() string {
	return fmt.Sprintf("no valid transition from state %v on event %v", e.State, e.Event)
}

func (e *NoTransitionError[S, E]) Unwrap() error {
	return ErrNoTransition
}

// TransitionError wraps a guard, action, or handler failure with the
// state/event pair that was being processed when it happened.
type TransitionError[S, E comparable] struct {
	State S
	Event E
	Err   error
}

func (e *TransitionError[S, E]) Error() string {
	return fmt.Sprintf("transition failed in state %v on event %v: %v", e.State, e.Event, e.Err)
}

func (e *TransitionError[S, E]) Unwrap() error {
	return e.Err
}

// WrapTransitionError wraps an error with the state/event pair being
// processed. Returns nil if err is nil.
func WrapTransitionError[S, E comparable](state S, event E, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError[S, E]{
		State: state,
		Event: event,
		Err:   err,
	}
}

// panicErr wraps a recovered panic value into an error, preserving the
// original error if the panic carried one.
func panicErr(origin string, v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w in %s: %w", ErrCallbackPanic, origin, err)
	}

	return fmt.Errorf("%w in %s: %v", ErrCallbackPanic, origin, v)
}
