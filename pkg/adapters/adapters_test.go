package adapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/fixtures"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		name    string
		want    adapters.Dialect
		errCode string
	}{
		{name: "", want: adapters.Native},
		{name: "native", want: adapters.Native},
		{name: " Looplab ", want: adapters.Looplab},
		{name: "stateless", want: adapters.Stateless},
		{name: "go-hsm", errCode: utils.CodeDialectNotImplemented},
		{name: "xstate", errCode: utils.CodeUnknownDialect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := adapters.ParseDialect(tt.name)
			if tt.errCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, d)
				return
			}
			require.Error(t, err)
			assert.True(t, utils.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.errCode)
		})
	}
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	_, err := adapters.New("xstate", fixtures.Simple(), adapters.Options{})
	assert.True(t, errors.Is(err, utils.ErrUnknownDialect))

	_, err = adapters.New(adapters.Native, &model.Definition{}, adapters.Options{})
	assert.True(t, utils.IsConfigurationError(err))
}

func forEachDialect(t *testing.T, fn func(t *testing.T, d adapters.Dialect)) {
	for _, d := range adapters.Dialects() {
		d := d
		t.Run(string(d), func(t *testing.T) { fn(t, d) })
	}
}

func TestDialects_LinearRun(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d adapters.Dialect) {
		ctx := context.Background()
		m, err := adapters.New(d, fixtures.Simple(), adapters.Options{})
		require.NoError(t, err)

		assert.Equal(t, "A", m.Current())
		assert.True(t, m.Can(ctx, "go_to_B"))
		assert.False(t, m.Can(ctx, "end_operation"))

		for _, trigger := range []string{"go_to_B", "go_to_C", "end_operation"} {
			require.NoError(t, m.Fire(ctx, trigger))
		}
		assert.Equal(t, "Finish", m.Current())

		require.NoError(t, m.SetState(ctx, "A"))
		assert.Equal(t, "A", m.Current())
		assert.True(t, errors.Is(m.SetState(ctx, "Ghost"), utils.ErrStateNotFound))
	})
}

func TestDialects_ErrorMapping(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d adapters.Dialect) {
		ctx := context.Background()
		m, err := adapters.New(d, fixtures.Simple(), adapters.Options{})
		require.NoError(t, err)

		err = m.Fire(ctx, "warp")
		assert.True(t, utils.IsExecutionError(err), "undeclared trigger: %v", err)

		err = m.Fire(ctx, "end_operation")
		assert.True(t, utils.IsVerificationError(err), "trigger from wrong state: %v", err)
		assert.Equal(t, "A", m.Current())
	})
}

func TestDialects_GuardOverrides(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d adapters.Dialect) {
		ctx := context.Background()
		m, err := adapters.New(d, fixtures.Deadlock(), adapters.Options{
			Guards: map[string]model.Guard{"is_defective": model.Always(false)},
		})
		require.NoError(t, err)
		require.NoError(t, m.SetState(ctx, "E"))

		err = m.Fire(ctx, "defective_op")
		assert.True(t, utils.IsVerificationError(err), "real guard blocks: %v", err)
		assert.Equal(t, "E", m.Current())

		m.SetGuard("is_defective", model.Always(true))
		require.NoError(t, m.Fire(ctx, "defective_op"))
		assert.Equal(t, "C", m.Current())

		m.SetGuard("is_defective", nil)
		require.NoError(t, m.SetState(ctx, "E"))
		require.NoError(t, m.Fire(ctx, "go_to_F"))
		assert.Equal(t, "F", m.Current())
	})
}

func TestDialects_SelfLoop(t *testing.T) {
	forEachDialect(t, func(t *testing.T, d adapters.Dialect) {
		ctx := context.Background()
		m, err := adapters.New(d, fixtures.Sink(), adapters.Options{})
		require.NoError(t, err)
		require.NoError(t, m.SetState(ctx, "Sink"))

		require.NoError(t, m.Fire(ctx, "retry"))
		assert.Equal(t, "Sink", m.Current())
		require.NoError(t, m.Fire(ctx, "restart"))
		assert.Equal(t, "C", m.Current())
	})
}

func TestDialects_Wildcards(t *testing.T) {
	def := model.NewDefinition("w", "A", []string{"A", "B"},
		model.NewTransition("next", "A", "B"),
		model.NewTransition("reset", model.WildcardAll, "A"),
	)
	forEachDialect(t, func(t *testing.T, d adapters.Dialect) {
		ctx := context.Background()
		m, err := adapters.New(d, def, adapters.Options{})
		require.NoError(t, err)

		require.NoError(t, m.Fire(ctx, "next"))
		require.NoError(t, m.Fire(ctx, "reset"))
		assert.Equal(t, "A", m.Current())
	})
}

func TestLooplab_RejectsTriggerBranches(t *testing.T) {
	_, err := adapters.New(adapters.Looplab, fixtures.AssemblyLine(), adapters.Options{})
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "inspected_component")
}

func TestStateless_TriggerBranches(t *testing.T) {
	ctx := context.Background()
	m, err := adapters.New(adapters.Stateless, fixtures.AssemblyLine(), adapters.Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetState(ctx, "InspectComponent"))

	m.SetGuard("is_bad_component", model.Always(true))
	require.NoError(t, m.Fire(ctx, "inspected_component"))
	assert.Equal(t, "DiscardComponent", m.Current())
}

func TestDelegationTable(t *testing.T) {
	ctx := context.Background()
	def := fixtures.Deadlock()
	m, err := adapters.New(adapters.Native, def, adapters.Options{
		Guards: fixtures.DeadlockGuards(),
	})
	require.NoError(t, err)
	dt := adapters.NewDelegationTable(def, m)

	names := dt.Names()
	assert.Contains(t, names, "go_to_B")
	assert.Contains(t, names, "may_go_to_B")
	assert.Contains(t, names, "is_A")
	assert.Contains(t, names, "to_Finish")
	assert.Contains(t, names, "may_to_Finish")
	assert.Contains(t, names, "is_defective")

	d, ok := dt.Lookup("is_defective")
	require.True(t, ok)
	assert.Equal(t, adapters.DelegateGuard, d.Kind)

	ok, err = dt.Call(ctx, "is_A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dt.Call(ctx, "may_go_to_C")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, dt.Trigger(ctx, "go_to_B"))
	assert.Equal(t, "B", m.Current())

	ok, err = dt.Call(ctx, "to_E")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "E", m.Current())

	ok, err = dt.Call(ctx, "is_defective")
	require.NoError(t, err)
	assert.True(t, ok)

	err = dt.Trigger(ctx, "is_A")
	assert.True(t, utils.IsExecutionError(err), "helpers are not triggers")

	_, err = dt.Call(ctx, "nope")
	assert.True(t, errors.Is(err, utils.ErrUnknownTrigger))
}

func TestDelegationTable_UnexposedTrigger(t *testing.T) {
	ctx := context.Background()
	def := fixtures.Simple()
	m, err := adapters.New(adapters.Native, fixtures.Simple(), adapters.Options{})
	require.NoError(t, err)

	def.Transitions = append(def.Transitions, model.NewTransition("teleport", "A", "Finish"))
	dt := adapters.NewDelegationTable(def, m)

	_, ok := dt.Lookup("teleport")
	assert.False(t, ok)
	err = dt.Trigger(ctx, "teleport")
	assert.True(t, utils.IsExecutionError(err))
}
