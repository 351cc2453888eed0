package fsmtester

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/analyzer"
	"github.com/anggasct/fsmtester/pkg/graph"
	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/simulator"
	"github.com/anggasct/fsmtester/pkg/suite"
	"github.com/anggasct/fsmtester/pkg/utils"
)

const tracerName = "github.com/anggasct/fsmtester"

// Tester verifies one machine. It owns the live machine for its whole
// lifetime and runs suites one at a time; it is not safe for concurrent use.
type Tester struct {
	sessionID string
	def       *model.Definition
	expanded  *model.Definition
	final     string

	dialect          adapters.Dialect
	guards           map[string]model.Guard
	machine          model.Machine
	machineObservers []machine.Observer
	expectedLoops    int

	graph     *graph.Graph
	analyzer  *analyzer.Analyzer
	simulator *simulator.Simulator
	runner    *suite.Runner

	logger    *slog.Logger
	tracer    trace.Tracer
	observers []suite.Observer
}

// Option configures a Tester
type Option func(*Tester)

// WithDialect selects the library the live machine is built with
func WithDialect(d adapters.Dialect) Option {
	return func(t *Tester) { t.dialect = d }
}

// WithGuards registers the real guard implementations of the machine
func WithGuards(guards map[string]model.Guard) Option {
	return func(t *Tester) { t.guards = guards }
}

// WithMachine verifies m instead of a machine built from the definition.
// The dialect and guard options are ignored.
func WithMachine(m model.Machine) Option {
	return func(t *Tester) { t.machine = m }
}

// WithMachineObservers attaches observers to a machine built from the
// definition in the native dialect
func WithMachineObservers(observers ...machine.Observer) Option {
	return func(t *Tester) { t.machineObservers = append(t.machineObservers, observers...) }
}

// WithExpectedLoops sets how many times any loop may be traversed before
// it must be left
func WithExpectedLoops(n int) Option {
	return func(t *Tester) { t.expectedLoops = n }
}

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tester) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithObservers registers suite observers
func WithObservers(observers ...suite.Observer) Option {
	return func(t *Tester) { t.observers = append(t.observers, observers...) }
}

// WithTracer sets the tracer used for session, suite and case spans
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tester) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// WithSessionID overrides the generated session id
func WithSessionID(id string) Option {
	return func(t *Tester) {
		if id != "" {
			t.sessionID = id
		}
	}
}

// New builds a tester for def. finalState must be a declared state.
// Configuration and model errors are returned before any suite exists.
func New(def *model.Definition, finalState string, opts ...Option) (*Tester, error) {
	if def == nil {
		return nil, utils.NewConfigurationError("no machine definition")
	}

	t := &Tester{
		sessionID: uuid.NewString(),
		def:       def.Clone(),
		final:     finalState,
		dialect:   adapters.Native,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("session", t.sessionID, "machine", def.Name)

	if err := t.def.Validate(); err != nil {
		return nil, err
	}
	if finalState == "" || !t.def.HasState(finalState) {
		return nil, utils.NewConfigurationErrorf("final state %q is not declared", finalState)
	}
	if t.expectedLoops < 0 {
		return nil, utils.NewConfigurationErrorf("expected loops must not be negative, got %d", t.expectedLoops)
	}

	t.expanded = t.def.ExpandWildcards()

	if t.machine == nil {
		m, err := adapters.New(t.dialect, t.def, adapters.Options{
			Guards:    t.guards,
			Observers: t.machineObservers,
			Logger:    t.logger,
		})
		if err != nil {
			return nil, err
		}
		t.machine = m
	}

	g, err := graph.Build(t.expanded)
	if err != nil {
		return nil, err
	}
	t.graph = g
	t.analyzer = analyzer.New(g, t.def.Initial, t.final)

	sim, err := simulator.New(t.expanded, g, t.machine,
		simulator.WithFinalState(t.final),
		simulator.WithExpectedLoops(t.expectedLoops),
		simulator.WithLogger(t.logger))
	if err != nil {
		return nil, err
	}
	t.simulator = sim

	t.runner = suite.NewRunner(
		suite.WithSessionID(t.sessionID),
		suite.WithLogger(t.logger),
		suite.WithTracer(t.tracer),
		suite.WithObservers(t.observers...),
	)

	t.logger.Debug("tester ready",
		"dialect", string(t.dialect),
		"states", g.NodeCount(),
		"transitions", g.EdgeCount(),
		"expected_loops", t.expectedLoops)

	return t, nil
}

// SessionID returns the id stamped on every report of this tester
func (t *Tester) SessionID() string { return t.sessionID }

// Definition returns a copy of the definition under test
func (t *Tester) Definition() *model.Definition { return t.def.Clone() }

// FinalState returns the state every run should be able to reach
func (t *Tester) FinalState() string { return t.final }

// Machine returns the live machine under test
func (t *Tester) Machine() model.Machine { return t.machine }

// Graph returns the reachability graph of the machine
func (t *Tester) Graph() *graph.Graph { return t.graph }

// Analyzer returns the static analyzer
func (t *Tester) Analyzer() *analyzer.Analyzer { return t.analyzer }

// Simulator returns the execution simulator
func (t *Tester) Simulator() *simulator.Simulator { return t.simulator }

// SuiteNames returns every suite name in run order: static suites first
func SuiteNames() []string {
	return []string{
		analyzer.UnreachableSuite,
		analyzer.SinkSuite,
		analyzer.NondeterministicSuite,
		simulator.ExecutionSuite,
		simulator.DeadlockSuite,
	}
}

// UnreachableStates builds the static reachability suite
func (t *Tester) UnreachableStates() *suite.Suite {
	return t.analyzer.UnreachableStates()
}

// SinkStates builds the static sink suite
func (t *Tester) SinkStates() *suite.Suite {
	return t.analyzer.SinkStates()
}

// NondeterministicTransitions builds the static nondeterminism suite
func (t *Tester) NondeterministicTransitions() *suite.Suite {
	return t.analyzer.NondeterministicTransitions(t.expanded.Transitions)
}

// MachineExecution builds the simulated reachability suite
func (t *Tester) MachineExecution() (*suite.Suite, error) {
	return t.simulator.BehavioralUnreachability()
}

// DeadlockStates builds the simulated loop-escape suite
func (t *Tester) DeadlockStates() (*suite.Suite, error) {
	return t.simulator.Deadlocks()
}

// Suite builds the suite called name. Suites are rebuilt on every call.
func (t *Tester) Suite(name string) (*suite.Suite, error) {
	switch name {
	case analyzer.UnreachableSuite:
		return t.UnreachableStates(), nil
	case analyzer.SinkSuite:
		return t.SinkStates(), nil
	case analyzer.NondeterministicSuite:
		return t.NondeterministicTransitions(), nil
	case simulator.ExecutionSuite:
		return t.MachineExecution()
	case simulator.DeadlockSuite:
		return t.DeadlockStates()
	default:
		return nil, utils.NewUnknownSuiteError(name, SuiteNames())
	}
}

// Run executes s and returns its report. A fatal error stops the run and
// is returned with the partial report.
func (t *Tester) Run(ctx context.Context, s *suite.Suite) (*suite.Report, error) {
	return t.runner.Run(ctx, s)
}

// RunSuite builds and runs the suite called name
func (t *Tester) RunSuite(ctx context.Context, name string) (*suite.Report, error) {
	s, err := t.Suite(name)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, s)
}

// RunAll runs every suite in SuiteNames order. Failing suites do not stop
// the session; a suite that cannot be built or aborts does, and the
// reports gathered so far are returned with the error.
func (t *Tester) RunAll(ctx context.Context) ([]*suite.Report, error) {
	ctx, span := t.tracer.Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", t.sessionID),
			attribute.String("machine.name", t.def.Name),
			attribute.String("machine.dialect", string(t.dialect)),
		))
	defer span.End()

	var reports []*suite.Report
	for _, name := range SuiteNames() {
		report, err := t.RunSuite(ctx, name)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return reports, fmt.Errorf("session %s: %w", t.sessionID, err)
		}
	}

	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("session.failed_suites", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d suite(s) failed", failed))
	}
	t.logger.Info("session finished", "suites", len(reports), "failed", failed)

	return reports, nil
}

// Verify runs every suite and folds the failing reports into one
// verification error. It returns nil when the machine passes.
func (t *Tester) Verify(ctx context.Context) error {
	reports, err := t.RunAll(ctx)
	if err != nil {
		return err
	}

	var summaries []string
	for _, r := range reports {
		if !r.Passed() {
			summaries = append(summaries, r.Summary())
		}
	}
	if len(summaries) == 0 {
		return nil
	}
	return utils.NewVerificationError(summaries).WithDetail("session", t.sessionID)
}
