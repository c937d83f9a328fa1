package fsmtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type ctxKey string

const (
	runIDKey    ctxKey = "runID"
	testNameKey ctxKey = "testName"
)

// UniqueContext derives a context tagged with the test name and a unique run
// ID. Callbacks receive the caller's context values, so log lines and spans
// produced while driving a machine can be correlated back to the test run
// that fired them.
func UniqueContext(t *testing.T) context.Context {
	t.Helper()

	ctx := context.WithValue(context.Background(), runIDKey, "test-"+uuid.NewString())

	return context.WithValue(ctx, testNameKey, t.Name())
}

// RunID returns the run ID stored by UniqueContext, if any.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)

	return id, ok
}

// TestName returns the test name stored by UniqueContext, if any.
func TestName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(testNameKey).(string)

	return name, ok
}
