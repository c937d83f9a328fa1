// Package fsmtest provides manually driven test doubles for machines that
// use timers, executors, or wall-clock timestamps.
package fsmtest

import (
	"slices"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
)

// OneShot is a captured ScheduleOnce call.
type OneShot struct {
	Run   func()
	Delay time.Duration
}

// Periodic is a captured SchedulePeriodically call.
type Periodic struct {
	Run          func()
	InitialDelay time.Duration
	Period       time.Duration
}

// TimerService captures scheduled callbacks instead of running them, so
// tests decide exactly when a timer fires. Captured callbacks are never
// removed: firing a callback the machine has since disarmed exercises the
// stale-timer path, which is a silent no-op on the machine side.
type TimerService struct {
	mu       sync.Mutex
	oneShots []OneShot
	periodic []Periodic
}

var _ fsm.TimerService = (*TimerService)(nil)

// NewTimerService creates an empty manual timer service.
func NewTimerService() *TimerService {
	return &TimerService{}
}

func (s *TimerService) ScheduleOnce(task func(), delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.oneShots = append(s.oneShots, OneShot{Run: task, Delay: delay})
}

func (s *TimerService) SchedulePeriodically(task func(), initialDelay, period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.periodic = append(s.periodic, Periodic{
		Run:          task,
		InitialDelay: initialDelay,
		Period:       period,
	})
}

// OneShots returns a copy of the captured one-shot schedules in scheduling
// order.
func (s *TimerService) OneShots() []OneShot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.oneShots)
}

// Periodics returns a copy of the captured periodic schedules in scheduling
// order.
func (s *TimerService) Periodics() []Periodic {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.periodic)
}

// OneShotCount reports how many one-shot callbacks have been scheduled.
func (s *TimerService) OneShotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.oneShots)
}

// PeriodicCount reports how many periodic callbacks have been scheduled.
func (s *TimerService) PeriodicCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.periodic)
}

// Fire runs the i-th captured one-shot callback on the calling goroutine.
func (s *TimerService) Fire(i int) {
	s.oneShot(i).Run()
}

// FireAll runs every captured one-shot callback in scheduling order.
func (s *TimerService) FireAll() {
	for _, shot := range s.OneShots() {
		shot.Run()
	}
}

// Tick runs the i-th captured periodic callback once.
func (s *TimerService) Tick(i int) {
	s.periodicAt(i).Run()
}

// TickAll runs every captured periodic callback once, in scheduling order.
func (s *TimerService) TickAll() {
	for _, p := range s.Periodics() {
		p.Run()
	}
}

func (s *TimerService) oneShot(i int) OneShot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.oneShots[i]
}

func (s *TimerService) periodicAt(i int) Periodic {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.periodic[i]
}

// SyncExecutor runs submitted tasks inline on the calling goroutine, which
// makes async handlers deterministic in tests.
type SyncExecutor struct{}

var _ fsm.Executor = SyncExecutor{}

func (SyncExecutor) Submit(task func()) {
	task()
}
