// Package analyzer runs guard-insensitive checks over the reachability graph.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anggasct/fsmtester/pkg/graph"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// Suite names and failure-message prefixes
const (
	UnreachableSuite      = "unreachable_states"
	SinkSuite             = "sink_states"
	NondeterministicSuite = "nondeterministic_transitions"

	UnreachableMessage      = "Unreachable States Detected"
	SinkMessage             = "Sink States Detected"
	NondeterministicMessage = "Nondeterministic Transitions Detected"
)

// Analyzer inspects the topology of a machine and the metadata of its
// transitions. It never looks at guard outcomes.
type Analyzer struct {
	graph   *graph.Graph
	initial string
	final   string
}

// New creates an analyzer over g
func New(g *graph.Graph, initial, final string) *Analyzer {
	return &Analyzer{graph: g, initial: initial, final: final}
}

// Unreachable returns the states with no path from the initial state
func (a *Analyzer) Unreachable() []string {
	var out []string
	for _, s := range a.graph.Nodes() {
		if !a.graph.HasPath(a.initial, s) {
			out = append(out, s)
		}
	}
	return out
}

// IsSink reports whether the final state can no longer be reached once the
// machine leaves s. The final state is never a sink; a non-final state is
// one when no successor is, or can reach, the final state.
func (a *Analyzer) IsSink(s string) bool {
	if s == a.final {
		return false
	}
	for _, next := range a.graph.Successors(s) {
		if next == a.final || a.graph.HasPath(next, a.final) {
			return false
		}
	}
	return true
}

// Sinks returns every sink state in declaration order
func (a *Analyzer) Sinks() []string {
	var out []string
	for _, s := range a.graph.Nodes() {
		if a.IsSink(s) {
			out = append(out, s)
		}
	}
	return out
}

// Nondeterministic returns the transitions leaving state that cannot be
// told apart from another transition leaving it
func (a *Analyzer) Nondeterministic(state string, transitions []model.Transition) []model.Transition {
	var outgoing []model.Transition
	for _, t := range transitions {
		if t.Source == state {
			outgoing = append(outgoing, t)
		}
	}

	flagged := make([]bool, len(outgoing))
	for i := 0; i < len(outgoing); i++ {
		for j := i + 1; j < len(outgoing); j++ {
			if outgoing[i].Same(outgoing[j]) {
				continue
			}
			if outgoing[i].Indistinguishable(outgoing[j]) {
				flagged[i] = true
				flagged[j] = true
			}
		}
	}

	var out []model.Transition
	for i, t := range outgoing {
		if flagged[i] {
			out = append(out, t)
		}
	}
	return out
}

// UnreachableStates builds one case per state asserting it can be reached
// from the initial state
func (a *Analyzer) UnreachableStates() *suite.Suite {
	s := suite.New(UnreachableSuite, UnreachableMessage)
	for _, state := range a.graph.Nodes() {
		state := state
		s.Add("unreachable/"+state, func(context.Context) error {
			if !a.graph.HasPath(a.initial, state) {
				return suite.Failf("state %s is not reachable from %s", state, a.initial)
			}
			return nil
		})
	}
	return s
}

// SinkStates builds one case per state asserting the final state is still
// reachable after leaving it
func (a *Analyzer) SinkStates() *suite.Suite {
	s := suite.New(SinkSuite, SinkMessage)
	for _, state := range a.graph.Nodes() {
		state := state
		s.Add("sink/"+state, func(context.Context) error {
			if !a.IsSink(state) {
				return nil
			}
			if succ := a.graph.Successors(state); len(succ) > 0 {
				return suite.Failf("no successor of %s (%s) reaches %s",
					state, strings.Join(succ, ", "), a.final)
			}
			return suite.Failf("state %s has no outgoing transition and is not %s", state, a.final)
		})
	}
	return s
}

// NondeterministicTransitions builds one case per state asserting every
// pair of transitions leaving it is distinguishable
func (a *Analyzer) NondeterministicTransitions(transitions []model.Transition) *suite.Suite {
	s := suite.New(NondeterministicSuite, NondeterministicMessage)
	for _, state := range a.graph.Nodes() {
		state := state
		s.Add("nondeterministic/"+state, func(context.Context) error {
			flagged := a.Nondeterministic(state, transitions)
			if len(flagged) == 0 {
				return nil
			}
			names := make([]string, 0, len(flagged))
			for _, t := range flagged {
				names = append(names, fmt.Sprintf("[%s]", t))
			}
			return suite.Failf("indistinguishable transitions from %s: %s",
				state, strings.Join(names, ", "))
		})
	}
	return s
}
