// Package fsm implements an event-driven finite state machine engine with
// ordered guarded transitions, per-state lifecycle handlers, timer-bound
// scheduling, and pluggable observability.
package fsm

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/atomic"
)

// Machine is an event-driven finite state machine over state type S and
// event type E. All event processing is serialized under one operation
// lock; callbacks run inside that lock and may call back into the machine
// synchronously, which re-enters instead of deadlocking.
//
// The zero value is not usable; construct with New.
type Machine[S, E comparable] struct {
	name   string
	id     string
	clock  func() time.Time
	timers TimerService
	log    Logger

	// mu is the operation lock: every Start, FireEvent, Reset, and timer
	// callback runs under it end to end. The ctx handed to callbacks
	// carries the lock token, so synchronous calls back into the machine
	// from guards, actions, handlers, and listeners run inline.
	mu sync.Mutex

	// regMu guards the registration collections. Mutators clone and swap;
	// the engine reads snapshot references, so callbacks may register
	// rules and listeners mid-operation without invalidating an iteration
	// already underway.
	regMu          sync.Mutex
	transitions    []*Transition[S, E]
	scheduled      []*scheduledTransition[S, E]
	periodic       []*periodicTrigger[S, E]
	handlers       map[S]StateHandler[S, E]
	defaultHandler StateHandler[S, E]
	listeners      []Listener[S, E]

	context *Context[S, E]
	started atomic.Bool
}

// Option configures a Machine at construction time.
type Option[S, E comparable] func(*Machine[S, E])

// WithName sets the machine name used in logs, metrics, and spans.
func WithName[S, E comparable](name string) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.name = name
	}
}

// WithID overrides the generated machine identifier.
func WithID[S, E comparable](id string) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.id = id
	}
}

// WithTimerService supplies the timer backend required by scheduled
// transitions and periodic triggers. Without one, registering any
// timer-bound object fails with ErrNoTimerService.
func WithTimerService[S, E comparable](timers TimerService) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.timers = timers
	}
}

// WithLogger replaces the default slog-backed logger.
func WithLogger[S, E comparable](log Logger) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.log = log
	}
}

// WithClock replaces the wall clock used for context timestamps.
func WithClock[S, E comparable](clock func() time.Time) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.clock = clock
	}
}

// WithTransition registers a transition rule at construction time.
// Construction-time rules keep their option order in resolution, ahead of
// anything added later.
func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.AddTransition(from, to, event, opts...)
	}
}

// WithHandler binds a state handler at construction time.
func WithHandler[S, E comparable](state S, handler StateHandler[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.RegisterHandler(state, handler)
	}
}

// WithDefaultHandler sets the fallback handler at construction time.
func WithDefaultHandler[S, E comparable](handler StateHandler[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.SetDefaultHandler(handler)
	}
}

// WithListener subscribes a listener at construction time.
func WithListener[S, E comparable](listener Listener[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		m.AddListener(listener)
	}
}

// New creates a machine holding initial as its current state. The machine
// accepts registrations immediately but runs no callbacks until Start.
func New[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{
		id:       uuid.NewString(),
		clock:    time.Now,
		log:      NewDefaultLogger(),
		handlers: map[S]StateHandler[S, E]{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.name == "" {
		m.name = "fsm-" + m.id
	}

	m.context = newContext[S, E](initial, m.clock())

	return m
}

// Name returns the machine name.
func (m *Machine[S, E]) Name() string {
	return m.name
}

// ID returns the machine identifier.
func (m *Machine[S, E]) ID() string {
	return m.id
}

// Context returns the machine's context. Its accessors are safe from any
// goroutine, including inside callbacks.
func (m *Machine[S, E]) Context() *Context[S, E] {
	return m.context
}

// CurrentState returns the state the machine currently holds.
func (m *Machine[S, E]) CurrentState() S {
	return m.context.CurrentState()
}

// IsStarted reports whether Start has run.
func (m *Machine[S, E]) IsStarted() bool {
	return m.started.Load()
}

// AddTransition registers a transition rule. Rules are consulted in
// registration order; the first whose source and event match and whose
// guard approves wins.
func (m *Machine[S, E]) AddTransition(from, to S, event E, opts ...TransitionOption[S, E]) {
	t := &Transition[S, E]{From: from, To: to, Event: event}
	for _, opt := range opts {
		opt(t)
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.transitions = append(slices.Clip(m.transitions), t)
}

// AddTransitions registers one rule per (from, event) pair, all leading to
// the same target and sharing the same options.
func (m *Machine[S, E]) AddTransitions(from []S, to S, events []E, opts ...TransitionOption[S, E]) {
	for _, f := range from {
		for _, e := range events {
			m.AddTransition(f, to, e, opts...)
		}
	}
}

// AddLoop registers a self-transition. Looping re-runs the state's exit and
// entry callbacks and re-arms its timer-bound objects.
func (m *Machine[S, E]) AddLoop(state S, event E, opts ...TransitionOption[S, E]) {
	m.AddTransition(state, state, event, opts...)
}

// AddLoops registers the same self-transition on several states.
func (m *Machine[S, E]) AddLoops(states []S, event E, opts ...TransitionOption[S, E]) {
	for _, s := range states {
		m.AddLoop(s, event, opts...)
	}
}

// AddScheduledTransition registers a rule fired by a one-shot timer armed
// whenever the machine enters from. The timer injects event through the
// ordinary resolution path, so guards and registration order still apply at
// fire time.
func (m *Machine[S, E]) AddScheduledTransition(from, to S, event E, delay time.Duration, opts ...TransitionOption[S, E]) error {
	if m.timers == nil {
		return ErrNoTimerService
	}

	if delay < 0 {
		return ErrInvalidDelay
	}

	t := &Transition[S, E]{From: from, To: to, Event: event}
	for _, opt := range opts {
		opt(t)
	}

	st := &scheduledTransition[S, E]{
		transition: t,
		delay:      delay,
		timers:     m.timers,
	}
	st.fire = func(generation int64) {
		m.scheduledFired(st, generation)
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()

	// The rule joins the ordinary resolution list as well, so the injected
	// event can actually resolve to it.
	m.transitions = append(slices.Clip(m.transitions), t)
	m.scheduled = append(slices.Clip(m.scheduled), st)

	return nil
}

// AddScheduledTransitions registers the same scheduled rule from several
// source states.
func (m *Machine[S, E]) AddScheduledTransitions(from []S, to S, event E, delay time.Duration, opts ...TransitionOption[S, E]) error {
	for _, f := range from {
		if err := m.AddScheduledTransition(f, to, event, delay, opts...); err != nil {
			return err
		}
	}

	return nil
}

// AddPeriodicTrigger registers a trigger that injects event at a fixed
// period while the machine sits in state. The injected event resolves
// through the ordinary rules; the trigger itself defines no transition.
func (m *Machine[S, E]) AddPeriodicTrigger(state S, event E, initialDelay, period time.Duration, opts ...TriggerOption[S, E]) error {
	if m.timers == nil {
		return ErrNoTimerService
	}

	if initialDelay < 0 || period <= 0 {
		return ErrInvalidDelay
	}

	cfg := triggerConfig[S, E]{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tr := &periodicTrigger[S, E]{
		state:          state,
		event:          event,
		initialDelay:   initialDelay,
		period:         period,
		guard:          cfg.guard,
		maxOccurrences: cfg.maxOccurrences,
		timers:         m.timers,
	}
	tr.tick = func() {
		m.periodicTicked(tr)
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.periodic = append(slices.Clip(m.periodic), tr)

	return nil
}

// AddPeriodicTriggers expands a states-by-events grid into singular
// AddPeriodicTrigger registrations, one trigger per combination.
func (m *Machine[S, E]) AddPeriodicTriggers(states []S, events []E, initialDelay, period time.Duration, opts ...TriggerOption[S, E]) error {
	for _, s := range states {
		for _, e := range events {
			if err := m.AddPeriodicTrigger(s, e, initialDelay, period, opts...); err != nil {
				return err
			}
		}
	}

	return nil
}

// RegisterHandler binds handler to state, replacing any previous binding.
func (m *Machine[S, E]) RegisterHandler(state S, handler StateHandler[S, E]) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	handlers := maps.Clone(m.handlers)
	handlers[state] = handler
	m.handlers = handlers
}

// SetDefaultHandler sets the handler consulted when resolution finds no
// matching rule. Reaching it settles the event, so its HandleEvent boolean
// is ignored.
func (m *Machine[S, E]) SetDefaultHandler(handler StateHandler[S, E]) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.defaultHandler = handler
}

// AddListener subscribes listener to state change and error notifications.
func (m *Machine[S, E]) AddListener(listener Listener[S, E]) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.listeners = append(slices.Clip(m.listeners), listener)
}

// RemoveListener unsubscribes a listener previously passed to AddListener,
// matched by identity.
func (m *Machine[S, E]) RemoveListener(listener Listener[S, E]) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	for i, l := range m.listeners {
		if l == listener {
			m.listeners = slices.Delete(slices.Clone(m.listeners), i, i+1)

			return
		}
	}
}

// ScheduleEvent fires event once after delay, whatever state the machine is
// in by then. The schedule is bound to no state and no transition ever
// disarms it.
func (m *Machine[S, E]) ScheduleEvent(event E, delay time.Duration) error {
	return m.ScheduleEventData(event, nil, delay)
}

// ScheduleEventData is ScheduleEvent with an event payload.
func (m *Machine[S, E]) ScheduleEventData(event E, data any, delay time.Duration) error {
	if m.timers == nil {
		return ErrNoTimerService
	}

	if delay < 0 {
		return ErrInvalidDelay
	}

	m.timers.ScheduleOnce(func() {
		// Failures are recorded on the context and broadcast to error
		// listeners inside FireEventData.
		_ = m.FireEventData(context.Background(), event, data)
	}, delay)

	return nil
}

// SchedulePeriodicEvent fires event after initialDelay and then every
// period, for the lifetime of the timer service, whatever state the machine
// is in. The schedule is bound to no state and never stops.
func (m *Machine[S, E]) SchedulePeriodicEvent(event E, initialDelay, period time.Duration) error {
	return m.SchedulePeriodicEventData(event, nil, initialDelay, period)
}

// SchedulePeriodicEventData is SchedulePeriodicEvent with an event payload.
func (m *Machine[S, E]) SchedulePeriodicEventData(event E, data any, initialDelay, period time.Duration) error {
	if m.timers == nil {
		return ErrNoTimerService
	}

	if initialDelay < 0 || period <= 0 {
		return ErrInvalidDelay
	}

	m.timers.SchedulePeriodically(func() {
		_ = m.FireEventData(context.Background(), event, data)
	}, initialDelay, period)

	return nil
}

// Start marks the machine started and enters the initial state: the initial
// state's OnEnter runs with zero-valued from and event, the state's
// timer-bound objects are armed, and listeners are notified. Start is
// idempotent; only the first call does any of this.
//
// An OnEnter failure is returned as is, with the machine already marked
// started and nothing recorded on the context.
func (m *Machine[S, E]) Start(ctx context.Context) error {
	ctx, release := m.enter(ctx)
	defer release()

	if m.started.Load() {
		return nil
	}

	m.started.Store(true)

	initial := m.context.CurrentState()

	ctx, span := startStartSpan(ctx, m.name, initial)
	defer span.End()

	m.log.MachineStarted(ctx, m.name, initial)

	var (
		zeroState S
		zeroEvent E
	)

	if err := m.safeEnter(ctx, m.handlerFor(initial), zeroState, zeroEvent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	m.armState(ctx, initial)
	m.notifyStateChanged(ctx, zeroState, initial, zeroEvent)
	span.SetStatus(codes.Ok, "started")

	return nil
}

// FireEvent submits event for synchronous processing against the current
// state. It returns nil when the event is consumed by a handler or
// completes a transition, ErrNotStarted before Start, a NoTransitionError
// when no rule matches and no default handler is set, and a TransitionError
// when a callback fails.
//
// Every returned error is first recorded as the context's last error and
// broadcast to error listeners.
func (m *Machine[S, E]) FireEvent(ctx context.Context, event E) error {
	return m.FireEventData(ctx, event, nil)
}

// FireEventData is FireEvent with an opaque payload handed through to the
// callbacks involved in processing.
func (m *Machine[S, E]) FireEventData(ctx context.Context, event E, data any) error {
	ctx, release := m.enter(ctx)
	defer release()

	ctx, span := startEventSpan(ctx, m.name, m.context.CurrentState(), event)
	defer span.End()

	err := m.fireLocked(ctx, event, data)
	if err == nil {
		span.SetStatus(codes.Ok, "processed")

		return nil
	}

	err = m.wrapFireError(event, err)

	// The state label reflects where the machine ended up, which for a
	// failure late in the transition protocol is the target state.
	m.context.setLastError(err)
	m.log.EventRejected(ctx, m.name, m.context.CurrentState(), event, err)
	m.notifyError(ctx, err)

	outcome := outcomeFailed
	if errors.Is(err, ErrNotStarted) || errors.Is(err, ErrNoTransition) {
		outcome = outcomeRejected
	}

	eventsTotal.WithLabelValues(sanitizeMachine(m.name), outcome).Inc()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

// Reset forces the machine into newState outside the normal event flow: the
// old state's OnExit runs and its timer-bound objects are disarmed,
// accumulated context data and the last error are cleared, the state
// variable moves, the new state's timer-bound objects are armed, its
// OnEnter runs, and listeners are notified with a zero-valued event. Reset
// works whether or not the machine is started.
//
// A callback failure is returned as is, with all steps before it already
// applied and nothing recorded on the context.
func (m *Machine[S, E]) Reset(ctx context.Context, newState S) error {
	ctx, release := m.enter(ctx)
	defer release()

	old := m.context.CurrentState()

	ctx, span := startResetSpan(ctx, m.name, old, newState)
	defer span.End()

	var zeroEvent E

	if err := m.safeExit(ctx, m.handlerFor(old), newState, zeroEvent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	m.disarmState(ctx, old)
	m.context.Clear()
	m.context.clearLastError()
	m.context.setCurrentState(newState, m.clock())
	m.armState(ctx, newState)

	if err := m.safeEnter(ctx, m.handlerFor(newState), old, zeroEvent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	m.log.MachineReset(ctx, m.name, old, newState)
	m.notifyStateChanged(ctx, old, newState, zeroEvent)
	span.SetStatus(codes.Ok, "reset")

	return nil
}

// fireLocked runs event processing under the operation lock and returns the
// raw outcome, leaving error bookkeeping to FireEventData.
func (m *Machine[S, E]) fireLocked(ctx context.Context, event E, data any) error {
	if !m.started.Load() {
		return ErrNotStarted
	}

	current := m.context.CurrentState()

	// The current state's handler gets first refusal on every event.
	if h := m.handlerFor(current); h != nil {
		consumed, err := m.safeHandle(ctx, h, event, data)
		if err != nil {
			return err
		}

		if consumed {
			m.log.EventConsumed(ctx, m.name, current, event)
			eventsTotal.WithLabelValues(sanitizeMachine(m.name), outcomeConsumed).Inc()

			return nil
		}
	}

	transition, err := m.resolve(ctx, current, event, data)
	if err != nil {
		return err
	}

	if transition == nil {
		// No rule matched; a default handler, when set, settles the event
		// instead of an error.
		if fallback := m.fallbackHandler(); fallback != nil {
			if _, err := m.safeHandle(ctx, fallback, event, data); err != nil {
				return err
			}

			eventsTotal.WithLabelValues(sanitizeMachine(m.name), outcomeDefaulted).Inc()

			return nil
		}

		return &NoTransitionError[S, E]{State: current, Event: event}
	}

	return m.executeTransition(ctx, transition, event, data)
}

// resolve scans the rules in registration order and returns the first one
// matching (current, event) whose guard approves. A guard failure aborts
// resolution; later rules are not consulted.
func (m *Machine[S, E]) resolve(ctx context.Context, current S, event E, data any) (*Transition[S, E], error) {
	for _, t := range m.snapshotTransitions() {
		if !t.matches(current, event) {
			continue
		}

		ok, err := m.safeGuard(ctx, t.Guard, event, data)
		if err != nil {
			return nil, err
		}

		if ok {
			return t, nil
		}
	}

	return nil, nil
}

// executeTransition runs the transition protocol. A failing step returns
// immediately and earlier steps are not rolled back, so a failure after the
// state variable moved leaves the machine in the target state.
func (m *Machine[S, E]) executeTransition(ctx context.Context, t *Transition[S, E], event E, data any) error {
	from := m.context.CurrentState()
	to := t.To

	annotateTransition(ctx, to)

	begin := time.Now()

	// Leave the old state before side effects: exit callback first, then
	// its timer-bound objects go cold.
	if err := m.safeExit(ctx, m.handlerFor(from), to, event); err != nil {
		return err
	}

	m.disarmState(ctx, from)

	if err := m.safeAction(ctx, t.Action, event, data); err != nil {
		return err
	}

	m.context.setCurrentState(to, m.clock())

	if err := m.safeEnter(ctx, m.handlerFor(to), from, event); err != nil {
		return err
	}

	m.armState(ctx, to)

	m.log.TransitionExecuted(ctx, m.name, from, to, event)

	machine := sanitizeMachine(m.name)
	transitionsTotal.WithLabelValues(machine, stateLabel(from), stateLabel(to)).Inc()
	transitionDuration.WithLabelValues(machine).Observe(time.Since(begin).Seconds())
	eventsTotal.WithLabelValues(machine, outcomeTransitioned).Inc()

	m.notifyStateChanged(ctx, from, to, event)

	return nil
}

// wrapFireError leaves the engine's own typed failures untouched and wraps
// everything else in a TransitionError stamped with the state the machine
// holds at failure time.
func (m *Machine[S, E]) wrapFireError(event E, err error) error {
	var (
		noTransition *NoTransitionError[S, E]
		transition   *TransitionError[S, E]
	)

	if errors.Is(err, ErrNotStarted) || errors.As(err, &noTransition) || errors.As(err, &transition) {
		return err
	}

	return &TransitionError[S, E]{State: m.context.CurrentState(), Event: event, Err: err}
}

// scheduledFired is the timer callback for a one-shot scheduled transition.
// It runs on the timer goroutine and takes the operation lock; a callback
// superseded by disarm or by a later re-arm drops out before touching the
// machine.
func (m *Machine[S, E]) scheduledFired(st *scheduledTransition[S, E], generation int64) {
	ctx, release := m.enter(context.Background())
	defer release()

	state := m.context.CurrentState()

	if st.stale(generation) {
		m.log.TimerFired(ctx, m.name, state, st.transition.Event, TimerScheduled, true)
		timerFiresTotal.WithLabelValues(sanitizeMachine(m.name), string(TimerScheduled), outcomeStale).Inc()

		return
	}

	st.consume()
	m.log.TimerFired(ctx, m.name, state, st.transition.Event, TimerScheduled, false)
	timerFiresTotal.WithLabelValues(sanitizeMachine(m.name), string(TimerScheduled), outcomeFired).Inc()

	_ = m.FireEventData(ctx, st.transition.Event, nil)
}

// periodicTicked is the timer callback for a periodic trigger. Ticks while
// the trigger is disarmed or while the machine holds a different state are
// dropped silently; the underlying task never stops.
func (m *Machine[S, E]) periodicTicked(tr *periodicTrigger[S, E]) {
	ctx, release := m.enter(context.Background())
	defer release()

	if !tr.armed.Load() || m.context.CurrentState() != tr.state {
		return
	}

	if tr.capReached() {
		tr.disarm()
		m.log.TimerDisarmed(ctx, m.name, tr.state, TimerPeriodic)

		return
	}

	if tr.guard != nil {
		ok, err := m.safeGuard(ctx, tr.guard, tr.event, nil)
		if err != nil {
			m.log.EventRejected(ctx, m.name, tr.state, tr.event, err)

			return
		}

		if !ok {
			// A refused tick is consumed without counting toward the
			// occurrence cap.
			return
		}
	}

	tr.count.Inc()
	m.log.TimerFired(ctx, m.name, tr.state, tr.event, TimerPeriodic, false)
	timerFiresTotal.WithLabelValues(sanitizeMachine(m.name), string(TimerPeriodic), outcomeFired).Inc()

	_ = m.FireEventData(ctx, tr.event, nil)
}

// armState arms every timer-bound object whose source state matches.
func (m *Machine[S, E]) armState(ctx context.Context, state S) {
	for _, st := range m.snapshotScheduled() {
		if st.transition.From == state {
			st.arm()
			m.log.TimerArmed(ctx, m.name, state, TimerScheduled)
		}
	}

	for _, tr := range m.snapshotPeriodic() {
		if tr.state == state {
			tr.arm()
			m.log.TimerArmed(ctx, m.name, state, TimerPeriodic)
		}
	}
}

// disarmState disarms every timer-bound object whose source state matches.
func (m *Machine[S, E]) disarmState(ctx context.Context, state S) {
	for _, st := range m.snapshotScheduled() {
		if st.transition.From == state {
			st.disarm()
			m.log.TimerDisarmed(ctx, m.name, state, TimerScheduled)
		}
	}

	for _, tr := range m.snapshotPeriodic() {
		if tr.state == state {
			tr.disarm()
			m.log.TimerDisarmed(ctx, m.name, state, TimerPeriodic)
		}
	}
}

func (m *Machine[S, E]) snapshotTransitions() []*Transition[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.transitions
}

func (m *Machine[S, E]) snapshotScheduled() []*scheduledTransition[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.scheduled
}

func (m *Machine[S, E]) snapshotPeriodic() []*periodicTrigger[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.periodic
}

func (m *Machine[S, E]) snapshotListeners() []Listener[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.listeners
}

func (m *Machine[S, E]) handlerFor(state S) StateHandler[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.handlers[state]
}

func (m *Machine[S, E]) fallbackHandler() StateHandler[S, E] {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	return m.defaultHandler
}

// safeGuard evaluates a guard, treating a nil guard as approval and a panic
// as a guard failure.
func (m *Machine[S, E]) safeGuard(ctx context.Context, guard Guard[S, E], event E, data any) (ok bool, err error) {
	if guard == nil {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ok, err = false, panicErr("guard", r)
		}
	}()

	return guard(ctx, m.context, event, data), nil
}

// safeAction runs a transition action, treating a nil action as a no-op and
// converting a panic into an error.
func (m *Machine[S, E]) safeAction(ctx context.Context, action Action[S, E], event E, data any) (err error) {
	if action == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicErr("action", r)
		}
	}()

	return action(ctx, m.context, event, data)
}

// safeEnter runs a handler's OnEnter, converting a panic into an error. A
// nil handler is a no-op.
func (m *Machine[S, E]) safeEnter(ctx context.Context, h StateHandler[S, E], from S, event E) (err error) {
	if h == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicErr("handler", r)
		}
	}()

	return h.OnEnter(ctx, m.context, from, event)
}

// safeExit runs a handler's OnExit, converting a panic into an error. A nil
// handler is a no-op.
func (m *Machine[S, E]) safeExit(ctx context.Context, h StateHandler[S, E], to S, event E) (err error) {
	if h == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicErr("handler", r)
		}
	}()

	return h.OnExit(ctx, m.context, to, event)
}

// safeHandle runs a handler's HandleEvent, converting a panic into an
// error.
func (m *Machine[S, E]) safeHandle(ctx context.Context, h StateHandler[S, E], event E, data any) (consumed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			consumed, err = false, panicErr("handler", r)
		}
	}()

	return h.HandleEvent(ctx, m.context, event, data)
}

// notifyStateChanged invokes OnStateChanged on every listener in
// registration order. A panicking listener is logged and skipped.
func (m *Machine[S, E]) notifyStateChanged(ctx context.Context, from, to S, event E) {
	for _, l := range m.snapshotListeners() {
		m.notifyOne(ctx, func() {
			l.OnStateChanged(ctx, from, to, event)
		})
	}
}

// notifyError invokes OnError on every listener in registration order. A
// panicking listener is logged and skipped.
func (m *Machine[S, E]) notifyError(ctx context.Context, err error) {
	for _, l := range m.snapshotListeners() {
		m.notifyOne(ctx, func() {
			l.OnError(ctx, err)
		})
	}
}

func (m *Machine[S, E]) notifyOne(ctx context.Context, notify func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.ListenerFailure(ctx, m.name, panicErr("listener", r))
		}
	}()

	notify()
}

// enter acquires the operation lock unless ctx shows this goroutine already
// holds it. The machine pointer itself is the context key, so re-entry is
// tracked per machine and nested operations across machines still lock
// correctly.
func (m *Machine[S, E]) enter(ctx context.Context) (context.Context, func()) {
	if ctx.Value(m) != nil {
		return ctx, func() {}
	}

	m.mu.Lock()

	return context.WithValue(ctx, m, struct{}{}), m.mu.Unlock
}
