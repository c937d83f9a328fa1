package fsm

import (
	"time"

	"go.uber.org/atomic"
)

// periodicTrigger re-injects an event at a fixed period while its bound state
// is current. It does not define a transition; whether the injected event
// causes one is decided normally by resolution.
//
// The underlying recurring task is created at most once, on the first arm,
// and then ticks for the machine's lifetime. Arming and disarming only flip
// the armed flag; a tick while disarmed, or while the machine sits in a
// different state, is a no-op.
type periodicTrigger[S, E comparable] struct {
	state          S
	event          E
	initialDelay   time.Duration
	period         time.Duration
	guard          Guard[S, E]
	maxOccurrences int

	timers    TimerService
	tick      func()
	armed     atomic.Bool
	scheduled atomic.Bool
	count     atomic.Int64
}

// TriggerOption configures a periodic trigger at registration time.
type TriggerOption[S, E comparable] func(*triggerConfig[S, E])

type triggerConfig[S, E comparable] struct {
	guard          Guard[S, E]
	maxOccurrences int
}

// WithTriggerGuard gates each tick: a false result consumes the tick without
// counting it against the occurrence cap.
func WithTriggerGuard[S, E comparable](guard Guard[S, E]) TriggerOption[S, E] {
	return func(c *triggerConfig[S, E]) {
		c.guard = guard
	}
}

// WithMaxOccurrences caps how many times the trigger fires. Zero or negative
// means unlimited.
func WithMaxOccurrences[S, E comparable](n int) TriggerOption[S, E] {
	return func(c *triggerConfig[S, E]) {
		c.maxOccurrences = n
	}
}

// arm enables ticking and lazily creates the single underlying recurring
// task. Idempotent against re-arming.
func (p *periodicTrigger[S, E]) arm() {
	p.armed.Store(true)

	if p.scheduled.CompareAndSwap(false, true) {
		p.timers.SchedulePeriodically(p.tick, p.initialDelay, p.period)
	}
}

// disarm stops the trigger from acting on ticks. The underlying task keeps
// ticking into no-ops.
func (p *periodicTrigger[S, E]) disarm() {
	p.armed.Store(false)
}

// capReached reports whether the occurrence cap is set and exhausted.
func (p *periodicTrigger[S, E]) capReached() bool {
	return p.maxOccurrences > 0 && p.count.Load() >= int64(p.maxOccurrences)
}
