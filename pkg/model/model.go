// Package model holds the dialect-independent description of a finite state
// machine: its states, its transitions and the names of the guards and
// actions attached to them.
package model

import (
	"fmt"
	"slices"
	"sort"
)

// Transition wildcards
const (
	// WildcardAll as a source means "from any declared state"
	WildcardAll = "*"
	// WildcardSame as a destination means "no state change"
	WildcardSame = "="
)

// State is a declared state and the callbacks run when entering or leaving it
type State struct {
	Name    string   `json:"name" yaml:"name"`
	OnEnter []string `json:"on_enter,omitempty" yaml:"on_enter,omitempty"`
	OnExit  []string `json:"on_exit,omitempty" yaml:"on_exit,omitempty"`
}

// NewState creates a state without callbacks
func NewState(name string) State {
	return State{Name: name}
}

// Transition is a trigger-labelled edge between two states
type Transition struct {
	Trigger     string   `json:"trigger" yaml:"trigger"`
	Source      string   `json:"source" yaml:"source"`
	Destination string   `json:"dest" yaml:"dest"`
	Conditions  []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Unless      []string `json:"unless,omitempty" yaml:"unless,omitempty"`
	Before      []string `json:"before,omitempty" yaml:"before,omitempty"`
	After       []string `json:"after,omitempty" yaml:"after,omitempty"`
}

// NewTransition creates an unguarded transition
func NewTransition(trigger, source, dest string) Transition {
	return Transition{Trigger: trigger, Source: source, Destination: dest}
}

// When returns a copy of t that also requires the named guards to hold
func (t Transition) When(guards ...string) Transition {
	t.Conditions = append(slices.Clone(t.Conditions), guards...)
	return t
}

// UnlessGuard returns a copy of t that also requires the named guards to fail
func (t Transition) UnlessGuard(guards ...string) Transition {
	t.Unless = append(slices.Clone(t.Unless), guards...)
	return t
}

// Same reports whether t and o are the same edge: same trigger, source and destination
func (t Transition) Same(o Transition) bool {
	return t.Trigger == o.Trigger && t.Source == o.Source && t.Destination == o.Destination
}

// Indistinguishable reports whether nothing in the guard or action metadata
// tells t and o apart. Guards compare as sets, actions as sequences.
func (t Transition) Indistinguishable(o Transition) bool {
	return sameSet(t.Conditions, o.Conditions) &&
		sameSet(t.Unless, o.Unless) &&
		slices.Equal(t.Before, o.Before) &&
		slices.Equal(t.After, o.After)
}

// IsSelfLoop reports whether t leaves its source unchanged
func (t Transition) IsSelfLoop() bool {
	return t.Destination == t.Source || t.Destination == WildcardSame
}

// Guarded reports whether firing t depends on any guard
func (t Transition) Guarded() bool {
	return len(t.Conditions) > 0 || len(t.Unless) > 0
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Trigger, t.Source, t.Destination)
}

func sameSet(a, b []string) bool {
	return slices.Equal(uniqueSorted(a), uniqueSorted(b))
}

func uniqueSorted(values []string) []string {
	out := slices.Clone(values)
	sort.Strings(out)
	return slices.Compact(out)
}
