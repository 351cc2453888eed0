package model

import (
	"fmt"
	"slices"

	"github.com/anggasct/fsmtester/pkg/utils"
)

// Source is anything that can describe a state machine to the engine
type Source interface {
	DeclaredStates() []State
	DeclaredTransitions() []Transition
	InitialState() string
}

// Definition is the canonical, declaration-ordered description of a machine
type Definition struct {
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Initial     string       `json:"initial" yaml:"initial"`
	States      []State      `json:"states" yaml:"states"`
	Transitions []Transition `json:"transitions" yaml:"transitions"`
}

// NewDefinition creates a definition from plain state names
func NewDefinition(name, initial string, states []string, transitions ...Transition) *Definition {
	def := &Definition{Name: name, Initial: initial}
	for _, s := range states {
		def.States = append(def.States, NewState(s))
	}
	def.Transitions = append(def.Transitions, transitions...)
	return def
}

// FromSource copies any Source into a Definition
func FromSource(src Source) *Definition {
	if def, ok := src.(*Definition); ok {
		return def.Clone()
	}
	return &Definition{
		Initial:     src.InitialState(),
		States:      slices.Clone(src.DeclaredStates()),
		Transitions: slices.Clone(src.DeclaredTransitions()),
	}
}

// DeclaredStates implements Source
func (d *Definition) DeclaredStates() []State {
	return d.States
}

// DeclaredTransitions implements Source
func (d *Definition) DeclaredTransitions() []Transition {
	return d.Transitions
}

// InitialState implements Source
func (d *Definition) InitialState() string {
	return d.Initial
}

// Clone returns a deep copy of the definition
func (d *Definition) Clone() *Definition {
	out := &Definition{Name: d.Name, Initial: d.Initial}
	for _, s := range d.States {
		out.States = append(out.States, State{
			Name:    s.Name,
			OnEnter: slices.Clone(s.OnEnter),
			OnExit:  slices.Clone(s.OnExit),
		})
	}
	for _, t := range d.Transitions {
		out.Transitions = append(out.Transitions, Transition{
			Trigger:     t.Trigger,
			Source:      t.Source,
			Destination: t.Destination,
			Conditions:  slices.Clone(t.Conditions),
			Unless:      slices.Clone(t.Unless),
			Before:      slices.Clone(t.Before),
			After:       slices.Clone(t.After),
		})
	}
	return out
}

// StateNames returns the declared state names in declaration order
func (d *Definition) StateNames() []string {
	names := make([]string, 0, len(d.States))
	for _, s := range d.States {
		names = append(names, s.Name)
	}
	return names
}

// HasState reports whether name is a declared state
func (d *Definition) HasState(name string) bool {
	return slices.ContainsFunc(d.States, func(s State) bool { return s.Name == name })
}

// State returns the declared state called name
func (d *Definition) State(name string) (State, bool) {
	i := slices.IndexFunc(d.States, func(s State) bool { return s.Name == name })
	if i < 0 {
		return State{}, false
	}
	return d.States[i], true
}

// Triggers returns every trigger name once, in declaration order
func (d *Definition) Triggers() []string {
	var out []string
	for _, t := range d.Transitions {
		if !slices.Contains(out, t.Trigger) {
			out = append(out, t.Trigger)
		}
	}
	return out
}

// GuardNames returns every guard referenced by a transition, in declaration order
func (d *Definition) GuardNames() []string {
	var out []string
	for _, t := range d.Transitions {
		for _, g := range append(slices.Clone(t.Conditions), t.Unless...) {
			if !slices.Contains(out, g) {
				out = append(out, g)
			}
		}
	}
	return out
}

// ActionNames returns every before/after/on_enter/on_exit callback name once
func (d *Definition) ActionNames() []string {
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !slices.Contains(out, n) {
				out = append(out, n)
			}
		}
	}
	for _, s := range d.States {
		add(s.OnEnter)
		add(s.OnExit)
	}
	for _, t := range d.Transitions {
		add(t.Before)
		add(t.After)
	}
	return out
}

// TransitionsFrom returns the transitions leaving source, in declaration order
func (d *Definition) TransitionsFrom(source string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.Source == source {
			out = append(out, t)
		}
	}
	return out
}

// TransitionBetween returns the unique transition from source to dest
func (d *Definition) TransitionBetween(source, dest string) (Transition, error) {
	var found []Transition
	for _, t := range d.Transitions {
		if t.Source == source && t.Destination == dest {
			found = append(found, t)
		}
	}

	switch len(found) {
	case 0:
		return Transition{}, utils.NewTransitionNotFoundError(source, dest)
	case 1:
		return found[0], nil
	default:
		triggers := make([]string, 0, len(found))
		for _, t := range found {
			triggers = append(triggers, t.Trigger)
		}
		return Transition{}, utils.NewAmbiguousTransitionError(source, dest, triggers)
	}
}

// Validate reports every inconsistency in the definition at once
func (d *Definition) Validate() error {
	ec := utils.NewErrorCollector()

	if len(d.States) == 0 {
		ec.Add(utils.NewConfigurationError("machine declares no states"))
	}
	if d.Initial == "" {
		ec.Add(utils.NewConfigurationError("machine declares no initial state"))
	}

	seen := make(map[string]bool, len(d.States))
	for _, s := range d.States {
		if s.Name == "" {
			ec.Add(utils.NewConfigurationError("state with empty name"))
			continue
		}
		if s.Name == WildcardAll || s.Name == WildcardSame {
			ec.Add(utils.NewConfigurationErrorf("state name %q is reserved", s.Name))
			continue
		}
		if seen[s.Name] {
			ec.Add(utils.NewDuplicateStateError(s.Name))
		}
		seen[s.Name] = true
	}

	if d.Initial != "" && len(d.States) > 0 && !seen[d.Initial] {
		ec.Add(utils.NewStateNotFoundError(d.Initial).WithDetail("role", "initial"))
	}

	for i, t := range d.Transitions {
		if t.Trigger == "" {
			ec.Add(utils.NewInvalidTransitionError(fmt.Sprintf("transition #%d has no trigger", i), ""))
		}
		if t.Source != WildcardAll && !seen[t.Source] {
			ec.Add(utils.NewStateNotFoundError(t.Source).
				WithTrigger(t.Trigger).
				WithDetail("role", "source"))
		}
		if t.Destination != WildcardSame && !seen[t.Destination] {
			ec.Add(utils.NewStateNotFoundError(t.Destination).
				WithTrigger(t.Trigger).
				WithDetail("role", "dest"))
		}
	}

	return ec.Err()
}

// ExpandWildcards returns a copy in which every "*" source is replaced by one
// transition per declared state and every "=" destination by its source.
// Expanded transitions keep the position of the wildcard declaration.
func (d *Definition) ExpandWildcards() *Definition {
	out := d.Clone()
	out.Transitions = out.Transitions[:0]

	for _, t := range d.Clone().Transitions {
		sources := []string{t.Source}
		if t.Source == WildcardAll {
			sources = d.StateNames()
		}
		for _, src := range sources {
			e := t
			e.Source = src
			if e.Destination == WildcardSame {
				e.Destination = src
			}
			e.Conditions = slices.Clone(t.Conditions)
			e.Unless = slices.Clone(t.Unless)
			e.Before = slices.Clone(t.Before)
			e.After = slices.Clone(t.After)
			if t.Source == WildcardAll && slices.ContainsFunc(out.Transitions, e.Same) {
				continue
			}
			out.Transitions = append(out.Transitions, e)
		}
	}

	return out
}
