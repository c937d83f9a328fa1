// Package timer provides a process-clock timer service for machines that
// use scheduled transitions or periodic triggers.
package timer

import (
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Service schedules callbacks on the process clock. Callbacks run on timer
// goroutines unless an executor is supplied. After Stop, new schedules are
// refused and callbacks that have not fired yet become no-ops.
type Service struct {
	log      *slog.Logger
	executor fsm.Executor

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
}

var _ fsm.TimerService = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithExecutor runs callbacks on executor instead of the timer goroutine.
func WithExecutor(executor fsm.Executor) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// New creates a running timer service.
func New(opts ...Option) *Service {
	s := &Service{
		log:    slog.Default(),
		timers: make(map[*time.Timer]struct{}),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ScheduleOnce runs task once after delay. A non-positive delay fires as
// soon as the runtime allows.
func (s *Service) ScheduleOnce(task func(), delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		s.log.Debug("Schedule ignored, timer service stopped")

		return
	}

	// The fired callback takes the same mutex before using t, so it cannot
	// observe t half-assigned even with a zero delay.
	var t *time.Timer

	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		s.run(task)
	})

	s.timers[t] = struct{}{}
}

// SchedulePeriodically runs task after initialDelay and then every period
// until the service is stopped.
func (s *Service) SchedulePeriodically(task func(), initialDelay, period time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		s.log.Debug("Periodic schedule ignored, timer service stopped")

		return
	}

	if period <= 0 {
		s.log.Warn("Periodic schedule ignored, period must be positive", "period", period)

		return
	}

	s.wg.Add(1)

	go s.runPeriodically(task, initialDelay, period)
}

// Stop cancels pending one-shot timers, ends periodic schedules, and waits
// for the periodic goroutines to exit. Stop is idempotent.
func (s *Service) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()

	for t := range s.timers {
		t.Stop()
	}

	clear(s.timers)
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) runPeriodically(task func(), initialDelay, period time.Duration) {
	defer s.wg.Done()

	first := time.NewTimer(initialDelay)
	defer first.Stop()

	select {
	case <-s.done:
		return
	case <-first.C:
	}

	s.run(task)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.run(task)
		}
	}
}

// run executes one callback, honoring the stop flag and the optional
// executor.
func (s *Service) run(task func()) {
	if s.stopped.Load() {
		return
	}

	if s.executor != nil {
		s.executor.Submit(task)

		return
	}

	task()
}
