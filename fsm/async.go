package fsm

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// AsyncHandler decorates a StateHandler so its OnEnter and OnExit run on an
// Executor instead of the event-processing goroutine, keeping slow entry and
// exit work out of the transition protocol. HandleEvent stays synchronous,
// since consumption has to be decided before resolution continues.
//
// Dispatched callbacks run detached: the ctx they receive keeps the firing
// operation's trace span but carries no cancellation and no lock re-entry,
// so a dispatched callback calling back into the machine locks normally and
// observes the machine after the triggering operation completed. Dispatched
// errors cannot fail the transition that queued them; they go to the error
// callback instead.
type AsyncHandler[S, E comparable] struct {
	inner    StateHandler[S, E]
	executor Executor
	onError  func(ctx context.Context, err error)
}

// AsyncOption configures an AsyncHandler.
type AsyncOption[S, E comparable] func(*AsyncHandler[S, E])

// WithAsyncErrorHandler replaces the default error callback, which logs
// through slog.
func WithAsyncErrorHandler[S, E comparable](onError func(ctx context.Context, err error)) AsyncOption[S, E] {
	return func(h *AsyncHandler[S, E]) {
		h.onError = onError
	}
}

// NewAsyncHandler wraps inner so its entry and exit callbacks run on
// executor.
func NewAsyncHandler[S, E comparable](inner StateHandler[S, E], executor Executor, opts ...AsyncOption[S, E]) *AsyncHandler[S, E] {
	h := &AsyncHandler[S, E]{
		inner:    inner,
		executor: executor,
		onError: func(ctx context.Context, err error) {
			slog.Default().ErrorContext(ctx, "Async state handler failed", "error", err)
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *AsyncHandler[S, E]) OnEnter(ctx context.Context, c *Context[S, E], from S, event E) error {
	h.dispatch(ctx, func(ctx context.Context) error {
		return h.inner.OnEnter(ctx, c, from, event)
	})

	return nil
}

func (h *AsyncHandler[S, E]) OnExit(ctx context.Context, c *Context[S, E], to S, event E) error {
	h.dispatch(ctx, func(ctx context.Context) error {
		return h.inner.OnExit(ctx, c, to, event)
	})

	return nil
}

func (h *AsyncHandler[S, E]) HandleEvent(ctx context.Context, c *Context[S, E], event E, data any) (bool, error) {
	return h.inner.HandleEvent(ctx, c, event, data)
}

// dispatch submits run to the executor under a detached context.
func (h *AsyncHandler[S, E]) dispatch(ctx context.Context, run func(context.Context) error) {
	detached := trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx))

	h.executor.Submit(func() {
		err := h.safeRun(detached, run)
		if err != nil {
			h.onError(detached, err)
		}
	})
}

func (h *AsyncHandler[S, E]) safeRun(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicErr("handler", r)
		}
	}()

	return run(ctx)
}
