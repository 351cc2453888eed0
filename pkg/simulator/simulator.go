// Package simulator drives a live machine along paths of its reachability
// graph. Before every transition the guards of that transition are
// overridden so it fires whatever the business logic behind them says.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/graph"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// Suite names and failure-message prefixes
const (
	ExecutionSuite = "machine_execution"
	DeadlockSuite  = "deadlock_states"

	ExecutionMessage = "Unreachable States Detected in Execution"
	DeadlockMessage  = "Deadlock Detected"
)

// Trace is the sequence of triggers fired during a simulated run
type Trace []string

// Simulator owns a live machine for the duration of a run. It is not safe
// for concurrent use: exactly one override set may be active at a time.
type Simulator struct {
	def           *model.Definition
	graph         *graph.Graph
	machine       model.Machine
	delegates     *adapters.DelegationTable
	initial       string
	final         string
	expectedLoops int
	logger        *slog.Logger
}

// Option configures a Simulator
type Option func(*Simulator)

// WithFinalState sets the state escape paths should lead to
func WithFinalState(state string) Option {
	return func(s *Simulator) { s.final = state }
}

// WithExpectedLoops sets how many times a loop may be traversed before its
// escape path must be taken. Negative values are treated as 0.
func WithExpectedLoops(n int) Option {
	return func(s *Simulator) {
		if n < 0 {
			n = 0
		}
		s.expectedLoops = n
	}
}

// WithLogger sets the simulator logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDelegates fires triggers through dt instead of a table built from m
func WithDelegates(dt *adapters.DelegationTable) Option {
	return func(s *Simulator) {
		if dt != nil {
			s.delegates = dt
		}
	}
}

// New creates a simulator. def must be the wildcard-free definition g was
// built from.
func New(def *model.Definition, g *graph.Graph, m model.Machine, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		def:     def,
		graph:   g,
		machine: m,
		initial: def.Initial,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "simulator")

	if !g.Has(s.initial) {
		return nil, utils.NewStateNotFoundError(s.initial).WithDetail("role", "initial")
	}
	if s.final != "" && !g.Has(s.final) {
		return nil, utils.NewConfigurationErrorf("final state %q is not declared", s.final)
	}
	if s.delegates == nil {
		s.delegates = adapters.NewDelegationTable(def, m)
	}
	return s, nil
}

// ExpectedLoops returns the configured loop tolerance
func (s *Simulator) ExpectedLoops() int {
	return s.expectedLoops
}

// override installs stubs permitting t and returns the function removing them
func (s *Simulator) override(t model.Transition) func() {
	for _, name := range t.Conditions {
		s.machine.SetGuard(name, model.Always(true))
	}
	for _, name := range t.Unless {
		s.machine.SetGuard(name, model.Always(false))
	}
	return func() {
		for _, name := range t.Conditions {
			s.machine.SetGuard(name, nil)
		}
		for _, name := range t.Unless {
			s.machine.SetGuard(name, nil)
		}
	}
}

// ExecuteTransition fires the unique transition from source to dest with its
// guards overridden and returns its trigger. A missing or ambiguous
// transition is a model error and a trigger the machine does not expose is
// an execution error; any other refusal is a *suite.Failure.
func (s *Simulator) ExecuteTransition(ctx context.Context, source, dest string) (string, error) {
	t, err := s.def.TransitionBetween(source, dest)
	if err != nil {
		return "", err
	}

	if d, ok := s.delegates.Lookup(t.Trigger); !ok || d.Kind != adapters.DelegateTrigger {
		return t.Trigger, utils.NewUnknownTriggerError(t.Trigger).WithState(source)
	}

	restore := s.override(t)
	defer restore()

	if err := s.delegates.Trigger(ctx, t.Trigger); err != nil {
		if utils.IsFatal(err) {
			return t.Trigger, err
		}
		return t.Trigger, suite.Failf("transition [%s] did not fire", t).WithCause(err)
	}

	s.logger.Debug("transition fired", "trigger", t.Trigger, "from", source, "to", dest)
	return t.Trigger, nil
}

// follow fires every hop of path from the current state, checking the state
// reached after each one. Triggers are appended to trace.
func (s *Simulator) follow(ctx context.Context, path graph.Path, trace Trace) (Trace, error) {
	for i := 0; i+1 < len(path); i++ {
		if err := ctx.Err(); err != nil {
			return trace, err
		}

		trigger, err := s.ExecuteTransition(ctx, path[i], path[i+1])
		if trigger != "" {
			trace = append(trace, trigger)
		}
		if err != nil {
			var failure *suite.Failure
			if errors.As(err, &failure) {
				return trace, failure.WithTrace(trace)
			}
			return trace, err
		}

		if current := s.machine.Current(); current != path[i+1] {
			return trace, suite.Failf("expected state %s after %s, machine is in %s",
				path[i+1], trigger, current).WithTrace(trace)
		}
	}
	return trace, nil
}

// ExecutePath resets the machine to its initial state and fires every hop
// of path, which must start at the initial state
func (s *Simulator) ExecutePath(ctx context.Context, path graph.Path) (Trace, error) {
	if err := s.machine.SetState(ctx, s.initial); err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, nil
	}
	if path[0] != s.initial {
		return nil, suite.Failf("path starts at %s, machine starts at %s", path[0], s.initial)
	}
	return s.follow(ctx, path, nil)
}

// validatePath checks every hop of path resolves to exactly one transition
func (s *Simulator) validatePath(path graph.Path) error {
	for i := 0; i+1 < len(path); i++ {
		if _, err := s.def.TransitionBetween(path[i], path[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// BehavioralUnreachability builds one case per simple path from the initial
// state to every state, driving the machine along it. Every hop is resolved
// up front, so an ambiguous hop fails the build instead of a case.
func (s *Simulator) BehavioralUnreachability() (*suite.Suite, error) {
	out := suite.New(ExecutionSuite, ExecutionMessage)

	for _, state := range s.graph.Nodes() {
		for i, path := range s.graph.AllSimplePaths(s.initial, state) {
			if len(path) < 2 {
				continue
			}
			if err := s.validatePath(path); err != nil {
				return nil, fmt.Errorf("building %s: %w", ExecutionSuite, err)
			}

			path := path
			out.Add(fmt.Sprintf("execution/%s#%d", state, i), func(ctx context.Context) error {
				_, err := s.ExecutePath(ctx, path)
				return err
			})
		}
	}

	return out, nil
}

// FindLoops returns every simple cycle of the graph, closed: [c0 ... c0]
func (s *Simulator) FindLoops() []graph.Path {
	return s.graph.SimpleCycles()
}

// FindEscapePath returns the shortest path from source to the final state,
// [source] included when source is final, or nil when the final state cannot
// be reached. Without a final state it returns the shortest non-trivial path,
// taking the first node discovered breadth-first.
func (s *Simulator) FindEscapePath(source string) graph.Path {
	if !s.graph.Has(source) {
		return nil
	}

	paths := s.graph.ShortestPathsFrom(source)
	if s.final != "" {
		return paths[s.final]
	}

	for _, n := range s.graph.DiscoveryOrder(source) {
		if n != source {
			return paths[n]
		}
	}
	return nil
}

// escapes reports whether escape leaves loop for good: it must end on the
// final state or on a state the final state is reachable from.
func (s *Simulator) escapes(loop, escape graph.Path) bool {
	if len(escape) == 0 {
		return false
	}
	end := escape[len(escape)-1]
	if s.final == "" {
		return !s.trapped(loop, end)
	}
	return end == s.final || s.graph.HasPath(end, s.final)
}

func (s *Simulator) trapped(loop graph.Path, state string) bool {
	if state == s.final {
		return false
	}
	for _, n := range loop {
		if n == state {
			return true
		}
	}
	return false
}

// DriveLoop traverses loop, a closed cycle starting at the current state,
// iterations times and then follows escape. It fails when the machine is
// left on a state of the loop other than the final state.
func (s *Simulator) DriveLoop(ctx context.Context, loop graph.Path, iterations int, escape graph.Path) (Trace, error) {
	return s.driveLoop(ctx, loop, iterations, escape, nil)
}

func (s *Simulator) driveLoop(ctx context.Context, loop graph.Path, iterations int, escape graph.Path, trace Trace) (Trace, error) {
	if len(loop) == 0 {
		return trace, nil
	}
	if current := s.machine.Current(); current != loop[0] {
		return trace, suite.Failf("loop starts at %s, machine is in %s", loop[0], current).WithTrace(trace)
	}

	var err error
	for i := 0; i < iterations; i++ {
		if trace, err = s.follow(ctx, loop, trace); err != nil {
			return trace, err
		}
	}
	if trace, err = s.follow(ctx, escape, trace); err != nil {
		return trace, err
	}

	if current := s.machine.Current(); s.trapped(loop, current) {
		return trace, suite.Failf("machine trapped in loop %s at %s after %d traversal(s)",
			strings.Join(loop, "->"), current, iterations).WithTrace(trace)
	}
	return trace, nil
}

// Deadlocks builds one case per loop. A loop without an escape path to the
// final state is an unconditional deadlock, whatever the expected loops. Otherwise the case
// drives the machine to the loop, around it the expected number of times
// and out through the escape path.
func (s *Simulator) Deadlocks() (*suite.Suite, error) {
	out := suite.New(DeadlockSuite, DeadlockMessage)

	for _, loop := range s.FindLoops() {
		loop := loop
		name := "deadlock/" + strings.Join(loop, "->")
		escape := s.FindEscapePath(loop[0])

		if !s.escapes(loop, escape) {
			out.Add(name, func(context.Context) error {
				return suite.Failf("loop %s has no escape path", strings.Join(loop, "->"))
			})
			continue
		}

		approach := s.graph.ShortestPath(s.initial, loop[0])
		if approach == nil {
			out.Add(name, func(context.Context) error {
				return suite.Skipf("loop entry %s is not reachable from %s", loop[0], s.initial)
			})
			continue
		}

		for _, p := range []graph.Path{approach, loop, escape} {
			if err := s.validatePath(p); err != nil {
				return nil, fmt.Errorf("building %s: %w", DeadlockSuite, err)
			}
		}

		out.Add(name, func(ctx context.Context) error {
			trace, err := s.ExecutePath(ctx, approach)
			if err != nil {
				return err
			}
			_, err = s.driveLoop(ctx, loop, s.expectedLoops, escape, trace)
			return err
		})
	}

	return out, nil
}
