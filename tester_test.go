package fsmtester

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/fixtures"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
	"github.com/anggasct/fsmtester/pkg/utils"
)

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name  string
		def   *model.Definition
		final string
		opts  []Option
		check func(error) bool
	}{
		{name: "nil definition", final: "Finish", check: utils.IsConfigurationError},
		{name: "undeclared final", def: fixtures.Simple(), final: "Ghost", check: utils.IsConfigurationError},
		{name: "empty final", def: fixtures.Simple(), check: utils.IsConfigurationError},
		{name: "negative loops", def: fixtures.Simple(), final: "Finish",
			opts: []Option{WithExpectedLoops(-1)}, check: utils.IsConfigurationError},
		{name: "unknown dialect", def: fixtures.Simple(), final: "Finish",
			opts:  []Option{WithDialect("xstate")},
			check: func(err error) bool { return errors.Is(err, ErrUnknownDialect) }},
		{name: "dialect without adapter", def: fixtures.Simple(), final: "Finish",
			opts:  []Option{WithDialect(GoHSM)},
			check: func(err error) bool { return errors.Is(err, ErrDialectNotImplemented) }},
		{name: "undeclared endpoint", final: "A",
			def:   NewDefinition("bad", "A", []string{"A"}, NewTransition("go", "A", "B")),
			check: utils.IsModelError},
		{name: "looplab cannot branch", def: fixtures.AssemblyLine(), final: "Finish",
			opts: []Option{WithDialect(Looplab)}, check: utils.IsConfigurationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tester, err := New(tt.def, tt.final, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, tester)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestTester_Suite(t *testing.T) {
	tester, err := New(fixtures.Simple(), fixtures.FinalState)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"unreachable_states",
		"sink_states",
		"nondeterministic_transitions",
		"machine_execution",
		"deadlock_states",
	}, SuiteNames())

	for _, name := range SuiteNames() {
		s, err := tester.Suite(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name)

		again, err := tester.Suite(name)
		require.NoError(t, err)
		assert.Equal(t, s.CaseNames(), again.CaseNames(), "suites are rebuilt identically")
	}

	_, err = tester.Suite("liveness")
	assert.True(t, errors.Is(err, ErrUnknownSuite))
	assert.True(t, IsConfigurationError(err))
}

func TestTester_SimpleMachinePasses(t *testing.T) {
	for _, d := range adapters.Dialects() {
		t.Run(string(d), func(t *testing.T) {
			tester, err := New(fixtures.Simple(), fixtures.FinalState, WithDialect(d))
			require.NoError(t, err)

			reports, err := tester.RunAll(context.Background())
			require.NoError(t, err)
			require.Len(t, reports, len(SuiteNames()))
			for _, r := range reports {
				AssertPassed(t, r)
				assert.Equal(t, tester.SessionID(), r.SessionID)
			}

			assert.NoError(t, tester.Verify(context.Background()))
		})
	}
}

func TestTester_SinkMachine(t *testing.T) {
	tester, err := New(fixtures.Sink(), fixtures.FinalState, WithExpectedLoops(1))
	require.NoError(t, err)

	reports, err := tester.RunAll(context.Background())
	require.NoError(t, err)

	AssertPassed(t, ReportFor(reports, "unreachable_states"))
	AssertFailedCases(t, ReportFor(reports, "sink_states"), "sink/C", "sink/Sink")
	AssertPassed(t, ReportFor(reports, "machine_execution"))
	AssertFailedCases(t, ReportFor(reports, "deadlock_states"), "deadlock/C->Sink->C", "deadlock/Sink->Sink")

	err = tester.Verify(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVerificationFailed))
	assert.Contains(t, err.Error(), "[Sink States Detected]: sink/C")
	assert.Contains(t, err.Error(), "[Deadlock Detected]")
}

func TestTester_AssemblyLine(t *testing.T) {
	cell := fixtures.NewAssemblyCell()
	for _, d := range []adapters.Dialect{adapters.Native, adapters.Stateless} {
		t.Run(string(d), func(t *testing.T) {
			tester, err := New(fixtures.AssemblyLine(), fixtures.FinalState,
				WithDialect(d),
				WithGuards(cell.Guards()),
				WithExpectedLoops(3))
			require.NoError(t, err)

			reports, err := tester.RunAll(context.Background())
			require.NoError(t, err)

			AssertFailedCases(t, ReportFor(reports, "unreachable_states"), "unreachable/NotUsed")
			AssertFailedCases(t, ReportFor(reports, "sink_states"), "sink/NotUsed")
			AssertPassed(t, ReportFor(reports, "nondeterministic_transitions"))
			AssertPassed(t, ReportFor(reports, "machine_execution"))
			AssertPassed(t, ReportFor(reports, "deadlock_states"))

			err = tester.Verify(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "[Unreachable States Detected]: unreachable/NotUsed")
		})
	}
}

func TestTester_NondeterministicMachine(t *testing.T) {
	tester, err := New(fixtures.Nondeterministic(), fixtures.FinalState)
	require.NoError(t, err)

	report, err := tester.RunSuite(context.Background(), "nondeterministic_transitions")
	require.NoError(t, err)
	AssertFailedCases(t, report, "nondeterministic/E")
	assert.Contains(t, report.Summary(), "go_to_F: E -> F")
}

func TestTester_DeadlockMachineEscapes(t *testing.T) {
	for _, d := range adapters.Dialects() {
		t.Run(string(d), func(t *testing.T) {
			tester, err := New(fixtures.Deadlock(), fixtures.FinalState,
				WithDialect(d),
				WithGuards(fixtures.DeadlockGuards()),
				WithExpectedLoops(3))
			require.NoError(t, err)

			assert.NoError(t, tester.Verify(context.Background()))
		})
	}
}

func TestTester_TrapMachine(t *testing.T) {
	tester, err := New(fixtures.Trap(), fixtures.FinalState, WithDialect(Looplab))
	require.NoError(t, err)

	report, err := tester.RunSuite(context.Background(), "deadlock_states")
	require.NoError(t, err)
	AssertFailedCases(t, report, "deadlock/C->D->E->C")
	assert.Contains(t, report.Summary(), "no escape path")
}

func TestTester_FreshSessionsAgree(t *testing.T) {
	type outcome struct {
		Suite   string
		Case    string
		Status  suite.Status
		Message string
	}
	session := func(def *Definition, opts ...Option) []outcome {
		tester, err := New(def, fixtures.FinalState, opts...)
		require.NoError(t, err)
		reports, err := tester.RunAll(context.Background())
		require.NoError(t, err)

		var out []outcome
		for _, r := range reports {
			for _, res := range r.Results {
				out = append(out, outcome{Suite: r.Suite, Case: res.Case, Status: res.Status, Message: res.Message})
			}
		}
		return out
	}

	t.Run("assembly line", func(t *testing.T) {
		for _, d := range []adapters.Dialect{adapters.Native, adapters.Stateless} {
			first := session(fixtures.AssemblyLine(), WithDialect(d),
				WithGuards(fixtures.NewAssemblyCell().Guards()), WithExpectedLoops(3))
			second := session(fixtures.AssemblyLine(), WithDialect(d),
				WithGuards(fixtures.NewAssemblyCell().Guards()), WithExpectedLoops(3))
			require.NotEmpty(t, first)
			assert.Equal(t, first, second, string(d))
		}
	})

	t.Run("sink", func(t *testing.T) {
		first := session(fixtures.Sink(), WithExpectedLoops(1))
		second := session(fixtures.Sink(), WithExpectedLoops(1))
		require.NotEmpty(t, first)
		assert.Equal(t, first, second)
	})
}

func TestTester_UnreachableLoopReportedOnce(t *testing.T) {
	def := NewDefinition("island", "A", []string{"A", "Finish", "X", "Y"},
		NewTransition("done", "A", "Finish"),
		NewTransition("to_y", "X", "Y"),
		NewTransition("to_x", "Y", "X"),
		NewTransition("leave", "Y", "Finish"),
	)
	tester, err := New(def, "Finish")
	require.NoError(t, err)

	reports, err := tester.RunAll(context.Background())
	require.NoError(t, err)

	AssertFailedCases(t, ReportFor(reports, "unreachable_states"), "unreachable/X", "unreachable/Y")
	deadlocks := ReportFor(reports, "deadlock_states")
	AssertPassed(t, deadlocks)
	assert.Equal(t, 1, deadlocks.Count(suite.StatusSkipped))
}

func TestTester_WithMachine(t *testing.T) {
	m, err := adapters.New(adapters.Stateless, fixtures.Deadlock(), adapters.Options{
		Guards: fixtures.DeadlockGuards(),
	})
	require.NoError(t, err)

	tester, err := New(fixtures.Deadlock(), fixtures.FinalState,
		WithMachine(m),
		WithDialect("ignored"),
		WithExpectedLoops(2))
	require.NoError(t, err)
	assert.Same(t, m, tester.Machine())

	assert.NoError(t, tester.Verify(context.Background()))
}

func TestTester_Observers(t *testing.T) {
	observer := NewTestObserver()
	tester, err := New(fixtures.Simple(), fixtures.FinalState,
		WithObservers(observer),
		WithMachineObservers(observer),
		WithSessionID("session-1"))
	require.NoError(t, err)
	assert.Equal(t, "session-1", tester.SessionID())

	_, err = tester.RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SuiteNames(), observer.SuiteNames())
	assert.Len(t, observer.Reports, len(SuiteNames()))
	assert.Zero(t, observer.CaseCount(suite.StatusFailed))
	assert.True(t, observer.VisitedStates()["Finish"])
	assert.Positive(t, observer.TransitionCount())
}

func TestTester_CancelledContext(t *testing.T) {
	tester, err := New(fixtures.Simple(), fixtures.FinalState)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := tester.RunAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Aborted)

	assert.True(t, errors.Is(tester.Verify(ctx), context.Canceled))
}

func TestTester_AmbiguousHopAbortsSession(t *testing.T) {
	def := NewDefinition("ambiguous", "A", []string{"A", "Finish"},
		NewTransition("first", "A", "Finish"),
		NewTransition("second", "A", "Finish"),
	)
	tester, err := New(def, "Finish")
	require.NoError(t, err)

	reports, err := tester.RunAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousTransition))
	assert.Len(t, reports, 3, "static suites ran before the execution suite failed to build")
}
