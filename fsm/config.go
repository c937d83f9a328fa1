package fsm

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"facette.io/natsort"
	"gopkg.in/yaml.v3"

	"github.com/amp-labs/amp-fsm/errors"
)

// Definition describes a string-typed machine in data form, suitable for
// YAML or JSON. Guards, actions, and handlers appear by name and are
// resolved against a Registry at build time.
type Definition struct {
	Name         string                 `json:"name"         yaml:"name"`
	InitialState string                 `json:"initialState" yaml:"initialState"`
	States       []StateDefinition      `json:"states"       yaml:"states"`
	Transitions  []TransitionDefinition `json:"transitions"  yaml:"transitions"`
	Triggers     []TriggerDefinition    `json:"triggers"     yaml:"triggers"`
}

// StateDefinition declares a state and optionally binds a named handler.
type StateDefinition struct {
	Name    string `json:"name"    yaml:"name"`
	Handler string `json:"handler" yaml:"handler"`
}

// TransitionDefinition declares a transition rule. A non-empty Delay, in
// time.ParseDuration syntax, makes it a scheduled transition.
type TransitionDefinition struct {
	From   string `json:"from"   yaml:"from"`
	To     string `json:"to"     yaml:"to"`
	Event  string `json:"event"  yaml:"event"`
	Guard  string `json:"guard"  yaml:"guard"`
	Action string `json:"action" yaml:"action"`
	Delay  string `json:"delay"  yaml:"delay"`
}

// TriggerDefinition declares a periodic trigger bound to a state. Durations
// use time.ParseDuration syntax; an empty InitialDelay means the period
// alone drives the first tick.
type TriggerDefinition struct {
	State          string `json:"state"          yaml:"state"`
	Event          string `json:"event"          yaml:"event"`
	InitialDelay   string `json:"initialDelay"   yaml:"initialDelay"`
	Period         string `json:"period"         yaml:"period"`
	Guard          string `json:"guard"          yaml:"guard"`
	MaxOccurrences int    `json:"maxOccurrences" yaml:"maxOccurrences"`
}

// LoadDefinition reads a definition from a YAML file on disk.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Intentional path-based loading
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %q: %w", path, err)
	}

	return ParseDefinition(data)
}

// ParseDefinition parses and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition

	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// LoadDefinitionFromFS reads a definition from an embedded filesystem.
// This is a convenience function for loading from embed.FS.
func LoadDefinitionFromFS(fsys fs.FS, path string) (*Definition, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition from FS: %w", err)
	}

	return ParseDefinition(data)
}

// Validate checks the definition for structural problems and reports all of
// them at once.
func (d *Definition) Validate() error {
	errs := &errors.Collection{}

	if d.Name == "" {
		errs.Add(ErrDefinitionNameRequired)
	}

	if d.InitialState == "" {
		errs.Add(ErrInitialStateRequired)
	}

	if len(d.States) == 0 {
		errs.Add(ErrStateRequired)
	}

	declared := make(map[string]bool, len(d.States))

	for _, s := range d.States {
		if s.Name == "" {
			errs.Add(ErrStateNameRequired)

			continue
		}

		if declared[s.Name] {
			errs.Add(fmt.Errorf("%w: %s", ErrDuplicateStateName, s.Name))
		}

		declared[s.Name] = true
	}

	if d.InitialState != "" && !declared[d.InitialState] {
		errs.Add(fmt.Errorf("initial state: %w", d.unknownState(d.InitialState)))
	}

	for i, t := range d.Transitions {
		if t.Event == "" {
			errs.Add(fmt.Errorf("transition %d: %w", i, ErrEventRequired))
		}

		if !declared[t.From] {
			errs.Add(fmt.Errorf("transition %d: %w", i, d.unknownState(t.From)))
		}

		if !declared[t.To] {
			errs.Add(fmt.Errorf("transition %d: %w", i, d.unknownState(t.To)))
		}

		if t.Delay != "" {
			if _, err := time.ParseDuration(t.Delay); err != nil {
				errs.Add(fmt.Errorf("transition %d delay: %w", i, ErrInvalidDelay))
			}
		}
	}

	for i, tr := range d.Triggers {
		if tr.Event == "" {
			errs.Add(fmt.Errorf("trigger %d: %w", i, ErrEventRequired))
		}

		if !declared[tr.State] {
			errs.Add(fmt.Errorf("trigger %d: %w", i, d.unknownState(tr.State)))
		}

		if tr.Period == "" {
			errs.Add(fmt.Errorf("trigger %d period: %w", i, ErrInvalidDelay))
		} else if _, err := time.ParseDuration(tr.Period); err != nil {
			errs.Add(fmt.Errorf("trigger %d period: %w", i, ErrInvalidDelay))
		}

		if tr.InitialDelay != "" {
			if _, err := time.ParseDuration(tr.InitialDelay); err != nil {
				errs.Add(fmt.Errorf("trigger %d initial delay: %w", i, ErrInvalidDelay))
			}
		}
	}

	return errs.GetError()
}

// unknownState builds an ErrUnknownState listing the declared states in
// natural sort order, so "state2" reads before "state10".
func (d *Definition) unknownState(name string) error {
	declared := make([]string, 0, len(d.States))
	for _, s := range d.States {
		declared = append(declared, s.Name)
	}

	natsort.Sort(declared)

	return fmt.Errorf("%w: %q (declared: %s)", ErrUnknownState, name, strings.Join(declared, ", "))
}

// Build constructs a machine from the definition, resolving callback names
// through reg. A nil reg works for definitions that name no callbacks. The
// machine is not started.
func (d *Definition) Build(reg *Registry, opts ...Option[string, string]) (*Machine[string, string], error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if reg == nil {
		reg = NewRegistry()
	}

	machineOpts := append([]Option[string, string]{WithName[string, string](d.Name)}, opts...)
	m := New(d.InitialState, machineOpts...)

	for _, s := range d.States {
		if s.Handler == "" {
			continue
		}

		handler, ok := reg.handler(s.Handler)
		if !ok {
			return nil, fmt.Errorf("state %s: %w: %s", s.Name, ErrUnknownHandler, s.Handler)
		}

		m.RegisterHandler(s.Name, handler)
	}

	for i, t := range d.Transitions {
		topts, err := reg.transitionOptions(t)
		if err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}

		if t.Delay == "" {
			m.AddTransition(t.From, t.To, t.Event, topts...)

			continue
		}

		delay, err := time.ParseDuration(t.Delay)
		if err != nil {
			return nil, fmt.Errorf("transition %d delay: %w", i, ErrInvalidDelay)
		}

		if err := m.AddScheduledTransition(t.From, t.To, t.Event, delay, topts...); err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
	}

	for i, tr := range d.Triggers {
		if err := d.buildTrigger(m, reg, tr); err != nil {
			return nil, fmt.Errorf("trigger %d: %w", i, err)
		}
	}

	return m, nil
}

// buildTrigger registers one periodic trigger from its definition.
func (d *Definition) buildTrigger(m *Machine[string, string], reg *Registry, tr TriggerDefinition) error {
	var initialDelay time.Duration

	if tr.InitialDelay != "" {
		parsed, err := time.ParseDuration(tr.InitialDelay)
		if err != nil {
			return fmt.Errorf("initial delay: %w", ErrInvalidDelay)
		}

		initialDelay = parsed
	}

	period, err := time.ParseDuration(tr.Period)
	if err != nil {
		return fmt.Errorf("period: %w", ErrInvalidDelay)
	}

	var topts []TriggerOption[string, string]

	if tr.Guard != "" {
		guard, ok := reg.guard(tr.Guard)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGuard, tr.Guard)
		}

		topts = append(topts, WithTriggerGuard[string, string](guard))
	}

	if tr.MaxOccurrences > 0 {
		topts = append(topts, WithMaxOccurrences[string, string](tr.MaxOccurrences))
	}

	return m.AddPeriodicTrigger(tr.State, tr.Event, initialDelay, period, topts...)
}

// Registry resolves the callback names a Definition references. The zero
// value is usable.
type Registry struct {
	guards   map[string]Guard[string, string]
	actions  map[string]Action[string, string]
	handlers map[string]StateHandler[string, string]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		guards:   make(map[string]Guard[string, string]),
		actions:  make(map[string]Action[string, string]),
		handlers: make(map[string]StateHandler[string, string]),
	}
}

// RegisterGuard makes guard available to definitions under name.
func (r *Registry) RegisterGuard(name string, guard Guard[string, string]) *Registry {
	if r.guards == nil {
		r.guards = make(map[string]Guard[string, string])
	}

	r.guards[name] = guard

	return r
}

// RegisterAction makes action available to definitions under name.
func (r *Registry) RegisterAction(name string, action Action[string, string]) *Registry {
	if r.actions == nil {
		r.actions = make(map[string]Action[string, string])
	}

	r.actions[name] = action

	return r
}

// RegisterHandler makes handler available to definitions under name.
func (r *Registry) RegisterHandler(name string, handler StateHandler[string, string]) *Registry {
	if r.handlers == nil {
		r.handlers = make(map[string]StateHandler[string, string])
	}

	r.handlers[name] = handler

	return r
}

func (r *Registry) guard(name string) (Guard[string, string], bool) {
	guard, ok := r.guards[name]

	return guard, ok
}

func (r *Registry) action(name string) (Action[string, string], bool) {
	action, ok := r.actions[name]

	return action, ok
}

func (r *Registry) handler(name string) (StateHandler[string, string], bool) {
	handler, ok := r.handlers[name]

	return handler, ok
}

// transitionOptions resolves a transition definition's guard and action
// names.
func (r *Registry) transitionOptions(t TransitionDefinition) ([]TransitionOption[string, string], error) {
	var opts []TransitionOption[string, string]

	if t.Guard != "" {
		guard, ok := r.guard(t.Guard)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGuard, t.Guard)
		}

		opts = append(opts, WithGuard[string, string](guard))
	}

	if t.Action != "" {
		action, ok := r.action(t.Action)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAction, t.Action)
		}

		opts = append(opts, WithAction[string, string](action))
	}

	return opts, nil
}
