package fsm

import "context"

// Listener observes state changes and errors. Both callbacks are best-effort:
// they run synchronously under the machine's operation lock, in registration
// order, and anything they panic with is logged and swallowed, never
// propagated to the caller that triggered the notification.
type Listener[S, E comparable] interface {
	// OnStateChanged fires after every completed transition, after Start
	// (from is the zero value of S), and after Reset (event is the zero
	// value of E).
	OnStateChanged(ctx context.Context, from, to S, event E)
	// OnError fires for every error FireEvent records, including
	// ErrNotStarted and failed resolution.
	OnError(ctx context.Context, err error)
}

// Listeners adapts plain functions to the Listener interface. Nil fields are
// skipped. Register a pointer so RemoveListener can match it by identity.
type Listeners[S, E comparable] struct {
	StateChanged func(ctx context.Context, from, to S, event E)
	Error        func(ctx context.Context, err error)
}

func (l *Listeners[S, E]) OnStateChanged(ctx context.Context, from, to S, event E) {
	if l.StateChanged != nil {
		l.StateChanged(ctx, from, to, event)
	}
}

func (l *Listeners[S, E]) OnError(ctx context.Context, err error) {
	if l.Error != nil {
		l.Error(ctx, err)
	}
}
