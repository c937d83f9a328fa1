package fsm

import "context"

// Guard decides whether a transition may fire. It runs under the machine's
// operation lock; the ctx it receives carries the lock token, so synchronous
// calls back into the machine re-enter instead of deadlocking.
type Guard[S, E comparable] func(ctx context.Context, c *Context[S, E], event E, data any) bool

// Action runs side effects during a transition, after the source state's
// timers are disarmed and before the state variable changes. A non-nil error
// aborts the transition with the machine still in the source state.
type Action[S, E comparable] func(ctx context.Context, c *Context[S, E], event E, data any) error

// Transition is a single rule mapping (From, Event) to To, gated by an
// optional Guard and followed by an optional Action. Transitions are
// immutable once registered.
type Transition[S, E comparable] struct {
	From   S
	To     S
	Event  E
	Guard  Guard[S, E]
	Action Action[S, E]
}

// TransitionOption configures a transition at registration time.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// WithGuard attaches a guard to the transition.
func WithGuard[S, E comparable](guard Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		t.Guard = guard
	}
}

// WithAction attaches an action to the transition.
func WithAction[S, E comparable](action Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		t.Action = action
	}
}

// matches reports whether this rule applies to the given state/event pair.
// Guard evaluation is separate; see Machine.resolve.
func (t *Transition[S, E]) matches(state S, event E) bool {
	return t.From == state && t.Event == event
}
