package fsm

import (
	"context"
	"log/slog"
)

// Logger provides logging hooks for machine execution. State and event
// values arrive as the caller's own types; implementations decide how to
// render them.
type Logger interface {
	MachineStarted(ctx context.Context, machine string, initial any)
	MachineReset(ctx context.Context, machine string, from, to any)
	TransitionExecuted(ctx context.Context, machine string, from, to, event any)
	EventConsumed(ctx context.Context, machine string, state, event any)
	EventRejected(ctx context.Context, machine string, state, event any, err error)
	TimerArmed(ctx context.Context, machine string, state any, kind TimerKind)
	TimerDisarmed(ctx context.Context, machine string, state any, kind TimerKind)
	TimerFired(ctx context.Context, machine string, state, event any, kind TimerKind, stale bool)
	ListenerFailure(ctx context.Context, machine string, err error)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger backed by slog.Default().
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: slog.Default(),
	}
}

// NewSlogLogger creates a logger backed by the given slog logger.
func NewSlogLogger(logger *slog.Logger) *DefaultLogger {
	return &DefaultLogger{
		logger: logger,
	}
}

func (l *DefaultLogger) MachineStarted(ctx context.Context, machine string, initial any) {
	l.logger.InfoContext(ctx, "Machine started",
		"machine", machine,
		"initial_state", initial,
	)
}

func (l *DefaultLogger) MachineReset(ctx context.Context, machine string, from, to any) {
	l.logger.InfoContext(ctx, "Machine reset",
		"machine", machine,
		"from", from,
		"to", to,
	)
}

func (l *DefaultLogger) TransitionExecuted(ctx context.Context, machine string, from, to, event any) {
	l.logger.InfoContext(ctx, "Transition executed",
		"machine", machine,
		"from", from,
		"to", to,
		"event", event,
	)
}

func (l *DefaultLogger) EventConsumed(ctx context.Context, machine string, state, event any) {
	l.logger.DebugContext(ctx, "Event consumed by handler",
		"machine", machine,
		"state", state,
		"event", event,
	)
}

func (l *DefaultLogger) EventRejected(ctx context.Context, machine string, state, event any, err error) {
	l.logger.WarnContext(ctx, "Event rejected",
		"machine", machine,
		"state", state,
		"event", event,
		"error", err,
	)
}

func (l *DefaultLogger) TimerArmed(ctx context.Context, machine string, state any, kind TimerKind) {
	l.logger.DebugContext(ctx, "Timer armed",
		"machine", machine,
		"state", state,
		"kind", string(kind),
	)
}

func (l *DefaultLogger) TimerDisarmed(ctx context.Context, machine string, state any, kind TimerKind) {
	l.logger.DebugContext(ctx, "Timer disarmed",
		"machine", machine,
		"state", state,
		"kind", string(kind),
	)
}

func (l *DefaultLogger) TimerFired(ctx context.Context, machine string, state, event any, kind TimerKind, stale bool) {
	if stale {
		l.logger.DebugContext(ctx, "Stale timer ignored",
			"machine", machine,
			"state", state,
			"event", event,
			"kind", string(kind),
		)

		return
	}

	l.logger.DebugContext(ctx, "Timer fired",
		"machine", machine,
		"state", state,
		"event", event,
		"kind", string(kind),
	)
}

func (l *DefaultLogger) ListenerFailure(ctx context.Context, machine string, err error) {
	l.logger.ErrorContext(ctx, "Listener failed during notification",
		"machine", machine,
		"error", err,
	)
}

// NopLogger discards all logging hooks.
type NopLogger struct{}

func (NopLogger) MachineStarted(context.Context, string, any) {}

func (NopLogger) MachineReset(context.Context, string, any, any) {}

func (NopLogger) TransitionExecuted(context.Context, string, any, any, any) {}

func (NopLogger) EventConsumed(context.Context, string, any, any) {}

func (NopLogger) EventRejected(context.Context, string, any, any, error) {}

func (NopLogger) TimerArmed(context.Context, string, any, TimerKind) {}

func (NopLogger) TimerDisarmed(context.Context, string, any, TimerKind) {}

func (NopLogger) TimerFired(context.Context, string, any, any, TimerKind, bool) {}

func (NopLogger) ListenerFailure(context.Context, string, error) {}
