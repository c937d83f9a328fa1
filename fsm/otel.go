package fsm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "fsm"

// startEventSpan creates the span covering one FireEvent call, callbacks
// included. Uses the global tracer initialized by the application's telemetry
// bootstrap. The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startEventSpan(ctx context.Context, machine string, state, event any) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fsm.fire_event")
	span.SetAttributes(
		attribute.String("fsm.machine", machine),
		attribute.String("fsm.state", fmt.Sprint(state)),
		attribute.String("fsm.event", fmt.Sprint(event)),
	)

	return ctx, span
}

// startStartSpan creates the span covering Start.
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startStartSpan(ctx context.Context, machine string, initial any) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fsm.start")
	span.SetAttributes(
		attribute.String("fsm.machine", machine),
		attribute.String("fsm.state", fmt.Sprint(initial)),
	)

	return ctx, span
}

// startResetSpan creates the span covering Reset.
//
//nolint:spancheck // Span lifecycle managed by caller (factory pattern)
func startResetSpan(ctx context.Context, machine string, from, to any) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fsm.reset")
	span.SetAttributes(
		attribute.String("fsm.machine", machine),
		attribute.String("fsm.state", fmt.Sprint(from)),
		attribute.String("fsm.to_state", fmt.Sprint(to)),
	)

	return ctx, span
}

// annotateTransition records the resolved destination on the active span.
func annotateTransition(ctx context.Context, to any) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("fsm.to_state", fmt.Sprint(to)),
	)
}
