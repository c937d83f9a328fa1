package fsm

import "time"

// TimerService schedules the callbacks that drive scheduled transitions and
// periodic triggers. Implementations may run callbacks on any goroutine and
// offer no per-task cancellation; the machine keeps all idempotency and
// cancellation semantics in its own armed/cancelled bookkeeping and treats a
// callback that fires after its work became stale as a no-op.
//
// The timer package provides a real-clock implementation and fsmtest provides
// a manually driven one for tests.
type TimerService interface {
	// ScheduleOnce runs task once after delay.
	ScheduleOnce(task func(), delay time.Duration)
	// SchedulePeriodically runs task after initialDelay and then every
	// period until the service itself is stopped.
	SchedulePeriodically(task func(), initialDelay, period time.Duration)
}

// Executor runs handler callbacks dispatched by AsyncHandler. The dispatch
// package provides a pooled implementation.
type Executor interface {
	// Submit runs task, typically on another goroutine. It must not block
	// the caller on the task's completion.
	Submit(task func())
}

// TimerKind distinguishes the two timer-bound object kinds in logs and
// metrics.
type TimerKind string

const (
	// TimerScheduled marks a one-shot scheduled transition.
	TimerScheduled TimerKind = "scheduled"
	// TimerPeriodic marks a recurring periodic trigger.
	TimerPeriodic TimerKind = "periodic"
)
