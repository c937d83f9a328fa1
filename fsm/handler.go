package fsm

import "context"

// StateHandler receives lifecycle callbacks for one state. All three methods
// run under the machine's operation lock with the lock token in ctx.
//
// HandleEvent runs before transition resolution: returning true consumes the
// event and no transition occurs. The same interface serves as the default
// handler, invoked when resolution finds no transition; its boolean result is
// ignored there.
type StateHandler[S, E comparable] interface {
	// OnEnter is called after the machine has entered this handler's state.
	// from is the vacated state, or the zero value of S on Start.
	OnEnter(ctx context.Context, c *Context[S, E], from S, event E) error
	// OnExit is called before the machine leaves this handler's state for
	// to. On Reset the event is the zero value of E.
	OnExit(ctx context.Context, c *Context[S, E], to S, event E) error
	// HandleEvent may consume an event before resolution. Returning true
	// stops the event; returning false hands it to the resolver.
	HandleEvent(ctx context.Context, c *Context[S, E], event E, data any) (bool, error)
}

// BaseHandler is a no-op StateHandler for embedding, so handlers only spell
// out the callbacks they care about.
type BaseHandler[S, E comparable] struct{}

func (BaseHandler[S, E]) OnEnter(context.Context, *Context[S, E], S, E) error {
	return nil
}

func (BaseHandler[S, E]) OnExit(context.Context, *Context[S, E], S, E) error {
	return nil
}

func (BaseHandler[S, E]) HandleEvent(context.Context, *Context[S, E], E, any) (bool, error) {
	return false, nil
}
