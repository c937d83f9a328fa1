// Package dispatch provides a bounded worker pool for running state machine
// callbacks off the event-processing goroutine.
package dispatch

import (
	"errors"
	"log/slog"

	"github.com/alitto/pond/v2"
	"go.uber.org/atomic"

	"github.com/amp-labs/amp-fsm/fsm"
)

const defaultWorkerCount = 10

// ErrPoolClosed is returned by SubmitWait after Close.
var ErrPoolClosed = errors.New("dispatch pool is closed")

// Pool runs tasks on a fixed number of workers. It satisfies the executor
// contract used by async handlers and timer services.
type Pool struct {
	name   string
	log    *slog.Logger
	pool   pond.Pool
	closed atomic.Bool
}

var _ fsm.Executor = (*Pool)(nil)

type poolOptions struct {
	name    string
	workers int
	log     *slog.Logger
}

// Option configures a Pool.
type Option func(*poolOptions)

// WithName sets the pool name used in logs and metrics.
func WithName(name string) Option {
	return func(p *poolOptions) {
		p.name = name
	}
}

// WithWorkers sets the worker count. Non-positive values fall back to the
// default.
func WithWorkers(n int) Option {
	return func(p *poolOptions) {
		p.workers = n
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *poolOptions) {
		p.log = log
	}
}

// New creates a running pool.
func New(opts ...Option) *Pool {
	options := &poolOptions{
		name:    "dispatch",
		workers: defaultWorkerCount,
		log:     slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.workers <= 0 {
		options.workers = defaultWorkerCount
	}

	p := &Pool{
		name: options.name,
		log:  options.log,
		pool: pond.NewPool(options.workers),
	}

	poolAlive.WithLabelValues(p.name).Set(1)
	tasksSubmitted.WithLabelValues(p.name).Add(0)
	tasksDropped.WithLabelValues(p.name).Add(0)

	return p
}

// Submit runs task on the pool without waiting for it. Tasks submitted
// after Close are dropped with a warning.
func (p *Pool) Submit(task func()) {
	if p.closed.Load() {
		p.drop(nil)

		return
	}

	if err := p.pool.Go(task); err != nil {
		p.drop(err)

		return
	}

	tasksSubmitted.WithLabelValues(p.name).Inc()
}

// SubmitWait runs task on the pool and blocks until it finishes. It reports
// ErrPoolClosed after Close and the task's panic, if any, as an error.
func (p *Pool) SubmitWait(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	tasksSubmitted.WithLabelValues(p.name).Inc()

	return p.pool.Submit(task).Wait()
}

// Close stops the pool and waits for in-flight tasks to finish. Close is
// idempotent.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.pool.StopAndWait()
	poolAlive.WithLabelValues(p.name).Set(0)

	return nil
}

func (p *Pool) drop(err error) {
	if err != nil {
		p.log.Warn("Task dropped, worker pool rejected it", "pool", p.name, "error", err)
	} else {
		p.log.Warn("Task dropped, worker pool is closed", "pool", p.name)
	}

	tasksDropped.WithLabelValues(p.name).Inc()
}
