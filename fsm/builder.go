package fsm

import "time"

// Builder provides a fluent API for declaring a machine. Declarations are
// collected and applied in order by Build, which surfaces registration
// failures one call site has to handle instead of one per declaration.
type Builder[S, E comparable] struct {
	name    string
	initial S
	opts    []Option[S, E]
	steps   []func(m *Machine[S, E]) error
}

// NewBuilder creates a builder for a machine named name starting in
// initial.
func NewBuilder[S, E comparable](name string, initial S) *Builder[S, E] {
	return &Builder[S, E]{
		name:    name,
		initial: initial,
	}
}

// WithTimerService supplies the timer backend for scheduled transitions and
// periodic triggers.
func (b *Builder[S, E]) WithTimerService(timers TimerService) *Builder[S, E] {
	b.opts = append(b.opts, WithTimerService[S, E](timers))

	return b
}

// WithLogger replaces the default slog-backed logger.
func (b *Builder[S, E]) WithLogger(log Logger) *Builder[S, E] {
	b.opts = append(b.opts, WithLogger[S, E](log))

	return b
}

// WithClock replaces the wall clock used for context timestamps.
func (b *Builder[S, E]) WithClock(clock func() time.Time) *Builder[S, E] {
	b.opts = append(b.opts, WithClock[S, E](clock))

	return b
}

// WithID overrides the generated machine identifier.
func (b *Builder[S, E]) WithID(id string) *Builder[S, E] {
	b.opts = append(b.opts, WithID[S, E](id))

	return b
}

// AddTransition declares a transition rule.
func (b *Builder[S, E]) AddTransition(from, to S, event E, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.AddTransition(from, to, event, opts...)

		return nil
	})

	return b
}

// AddTransitions declares one rule per (from, event) pair leading to the
// same target.
func (b *Builder[S, E]) AddTransitions(from []S, to S, events []E, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.AddTransitions(from, to, events, opts...)

		return nil
	})

	return b
}

// AddLoop declares a self-transition.
func (b *Builder[S, E]) AddLoop(state S, event E, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.AddLoop(state, event, opts...)

		return nil
	})

	return b
}

// AddLoops declares the same self-transition on several states.
func (b *Builder[S, E]) AddLoops(states []S, event E, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.AddLoops(states, event, opts...)

		return nil
	})

	return b
}

// AddScheduledTransition declares a one-shot timer-fired rule.
func (b *Builder[S, E]) AddScheduledTransition(from, to S, event E, delay time.Duration, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		return m.AddScheduledTransition(from, to, event, delay, opts...)
	})

	return b
}

// AddScheduledTransitions declares the same scheduled rule from several
// source states.
func (b *Builder[S, E]) AddScheduledTransitions(from []S, to S, event E, delay time.Duration, opts ...TransitionOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		return m.AddScheduledTransitions(from, to, event, delay, opts...)
	})

	return b
}

// AddPeriodicTrigger declares a recurring event injection bound to state.
func (b *Builder[S, E]) AddPeriodicTrigger(state S, event E, initialDelay, period time.Duration, opts ...TriggerOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		return m.AddPeriodicTrigger(state, event, initialDelay, period, opts...)
	})

	return b
}

// AddPeriodicTriggers declares a states-by-events grid of periodic
// triggers.
func (b *Builder[S, E]) AddPeriodicTriggers(states []S, events []E, initialDelay, period time.Duration, opts ...TriggerOption[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		return m.AddPeriodicTriggers(states, events, initialDelay, period, opts...)
	})

	return b
}

// RegisterHandler declares a state handler binding.
func (b *Builder[S, E]) RegisterHandler(state S, handler StateHandler[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.RegisterHandler(state, handler)

		return nil
	})

	return b
}

// SetDefaultHandler declares the fallback handler for unresolved events.
func (b *Builder[S, E]) SetDefaultHandler(handler StateHandler[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.SetDefaultHandler(handler)

		return nil
	})

	return b
}

// AddListener declares a listener subscription.
func (b *Builder[S, E]) AddListener(listener Listener[S, E]) *Builder[S, E] {
	b.steps = append(b.steps, func(m *Machine[S, E]) error {
		m.AddListener(listener)

		return nil
	})

	return b
}

// Build constructs the machine and applies the collected declarations in
// order. The machine is not started.
func (b *Builder[S, E]) Build() (*Machine[S, E], error) {
	opts := append([]Option[S, E]{WithName[S, E](b.name)}, b.opts...)
	m := New(b.initial, opts...)

	for _, step := range b.steps {
		if err := step(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}
