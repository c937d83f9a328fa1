package fsm

import (
	"time"

	"go.uber.org/atomic"
)

// scheduledTransition is a one-shot timer-bound transition. The machine arms
// it on entry to its source state, which hands a callback to the
// TimerService, and disarms it on exit. Disarming never retracts the
// underlying timer; the callback checks the generation stamp and the
// cancelled flag under the operation lock and fires only when both still
// match, so a stale timer resolves to a no-op.
type scheduledTransition[S, E comparable] struct {
	transition *Transition[S, E]
	delay      time.Duration

	timers    TimerService
	fire      func(generation int64)
	armed     atomic.Bool
	cancelled atomic.Bool
	gen       atomic.Int64
}

// arm schedules the one-shot callback unless one is already pending.
// Re-entrant arm calls while armed must not create a second timer.
func (s *scheduledTransition[S, E]) arm() {
	if s.armed.Load() {
		return
	}

	s.cancelled.Store(false)
	s.armed.Store(true)
	generation := s.gen.Inc()

	s.timers.ScheduleOnce(func() {
		s.fire(generation)
	}, s.delay)
}

// disarm marks any pending callback stale. The timer itself keeps running.
func (s *scheduledTransition[S, E]) disarm() {
	s.cancelled.Store(true)
	s.armed.Store(false)
}

// stale reports whether a callback carrying the given generation should be
// ignored: either the transition was disarmed, or the state was re-entered
// and a newer timer superseded this one.
func (s *scheduledTransition[S, E]) stale(generation int64) bool {
	return s.cancelled.Load() || generation != s.gen.Load()
}

// consume clears the armed flag once the one-shot callback has fired, so a
// later re-entry to the source state arms a fresh timer.
func (s *scheduledTransition[S, E]) consume() {
	s.armed.Store(false)
}
