package observers_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/fsmtester/pkg/fixtures"
	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/observers"
	"github.com/anggasct/fsmtester/pkg/suite"
)

func sampleSuite() *suite.Suite {
	return suite.New("sample", "Sample Problems").
		Add("ok", func(context.Context) error { return nil }).
		Add("bad", func(context.Context) error {
			return suite.Failf("broken").WithTrace([]string{"go_to_B"})
		}).
		Add("skip", func(context.Context) error { return suite.Skipf("n/a") })
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observers.LogError, observers.ParseLogLevel("error"))
	assert.Equal(t, observers.LogWarning, observers.ParseLogLevel("warn"))
	assert.Equal(t, observers.LogDebug, observers.ParseLogLevel("debug"))
	assert.Equal(t, observers.LogInfo, observers.ParseLogLevel("loud"))
	assert.Equal(t, slog.LevelWarn, observers.LogWarning.SlogLevel())
}

func TestLoggingObserver_SuiteLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := observers.NewLoggingObserver(logger, observers.LogWarning, "test")

	_, err := suite.NewRunner(suite.WithObservers(o)).Run(context.Background(), sampleSuite())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "case failed")
	assert.Contains(t, out, "case=bad")
	assert.Contains(t, out, "suite failed")
	assert.Contains(t, out, "observer=test")
	assert.NotContains(t, out, "running suite", "info is above the configured level")
	assert.NotContains(t, out, "case=ok")
}

func TestLoggingObserver_MachineEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := observers.NewLoggingObserver(logger, observers.LogDebug, "")

	m, err := machine.New(fixtures.Simple(), machine.WithObserver(o))
	require.NoError(t, err)
	require.NoError(t, m.Fire(context.Background(), "go_to_B"))
	require.Error(t, m.Fire(context.Background(), "end_operation"))

	out := buf.String()
	assert.Contains(t, out, "transition")
	assert.Contains(t, out, "to=B")
	assert.Contains(t, out, "trigger rejected")
}

func TestMetricsObserver(t *testing.T) {
	ctx := context.Background()
	o := observers.NewMetricsObserver()

	m, err := machine.New(fixtures.Simple(), machine.WithObserver(o))
	require.NoError(t, err)
	for _, trigger := range []string{"go_to_B", "go_to_C", "end_operation"} {
		require.NoError(t, m.Fire(ctx, trigger))
	}
	require.Error(t, m.Fire(ctx, "go_to_B"))

	assert.Equal(t, 1, o.GetStateVisitCounts()["Finish"])
	assert.Equal(t, 1, o.GetTransitionCounts()["A->B"])
	assert.Equal(t, 1, o.GetRejectedCounts()["go_to_B"])
	assert.Contains(t, o.GetStateTimeSpent(), "B")

	_, err = suite.NewRunner(suite.WithObservers(o)).Run(ctx, sampleSuite())
	require.NoError(t, err)
	counts := o.GetCaseCounts()
	assert.Equal(t, 1, counts[suite.StatusPassed])
	assert.Equal(t, 1, counts[suite.StatusFailed])
	assert.Equal(t, 1, counts[suite.StatusSkipped])
	assert.Contains(t, o.GetSuiteDurations(), "sample")

	aborting := suite.New("aborting", "x").Add("boom", func(context.Context) error { return errors.New("boom") })
	_, err = suite.NewRunner(suite.WithObservers(o)).Run(ctx, aborting)
	require.Error(t, err)
	assert.Equal(t, 1, o.GetAbortedSuites())

	o.Reset()
	assert.Empty(t, o.GetStateVisitCounts())
	assert.Empty(t, o.GetCaseCounts())
}

func TestValidationObserver(t *testing.T) {
	ctx := context.Background()
	def := fixtures.Sink()
	o := observers.NewValidationObserver(def)

	m, err := machine.New(def, machine.WithObserver(o))
	require.NoError(t, err)
	require.NoError(t, m.Fire(ctx, "go_to_B"))
	require.NoError(t, m.Fire(ctx, "go_to_C"))

	assert.False(t, o.HasViolations())
	assert.Equal(t, []string{"Finish", "Sink"}, o.GetUnvisitedStates())

	o.OnTransition("A", "Finish", "teleport")
	assert.True(t, o.HasViolations())
	assert.Len(t, o.GetViolations(), 1)

	o.Reset()
	assert.False(t, o.HasViolations())
	assert.Equal(t, []string{"B", "C", "Finish", "Sink"}, o.GetUnvisitedStates())
}
