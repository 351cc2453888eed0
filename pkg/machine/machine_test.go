package machine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/anggasct/fsmtester/pkg/fixtures"
	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	machine.BaseObserver
	transitions []string
	rejected    []string
	guards      map[string]bool
}

func (r *recorder) OnTransition(from, to, trigger string) {
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recorder) OnEventRejected(trigger, reason string) {
	r.rejected = append(r.rejected, trigger)
}

func (r *recorder) OnGuardEvaluation(t model.Transition, permitted bool) {
	if r.guards == nil {
		r.guards = map[string]bool{}
	}
	r.guards[t.String()] = permitted
}

func TestStateMachine_FiresInOrder(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	sm, err := machine.New(fixtures.Simple(), machine.WithObserver(rec))
	require.NoError(t, err)

	assert.Equal(t, "A", sm.Current())
	require.NoError(t, sm.Fire(ctx, "go_to_B"))
	require.NoError(t, sm.Fire(ctx, "go_to_C"))
	require.NoError(t, sm.Fire(ctx, "end_operation"))

	assert.True(t, sm.Is("Finish"))
	assert.Equal(t, []string{"A->B", "B->C", "C->Finish"}, rec.transitions)
	assert.Equal(t, []string{"go_to_B", "go_to_C", "end_operation"}, sm.Triggers())
}

func TestStateMachine_Errors(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	sm, err := machine.New(fixtures.Simple(), machine.WithObserver(rec))
	require.NoError(t, err)

	err = sm.Fire(ctx, "launch")
	assert.True(t, utils.IsExecutionError(err), "undeclared trigger is a harness error")
	assert.True(t, errors.Is(err, utils.ErrUnknownTrigger))

	err = sm.Fire(ctx, "end_operation")
	assert.True(t, utils.IsVerificationError(err), "declared trigger from the wrong state is a rejection")
	assert.Equal(t, "A", sm.Current())
	assert.Equal(t, []string{"launch", "end_operation"}, rec.rejected)

	assert.True(t, errors.Is(sm.SetState(ctx, "Ghost"), utils.ErrStateNotFound))
}

func TestStateMachine_Guards(t *testing.T) {
	ctx := context.Background()
	defective := false
	sm, err := machine.New(fixtures.Deadlock(), machine.WithGuards(map[string]model.Guard{
		"is_defective": func(context.Context) bool { return defective },
	}))
	require.NoError(t, err)
	require.NoError(t, sm.SetState(ctx, "E"))

	assert.True(t, sm.Can(ctx, "go_to_F"))
	assert.False(t, sm.Can(ctx, "defective_op"))

	err = sm.Fire(ctx, "defective_op")
	require.Error(t, err)
	assert.True(t, utils.IsVerificationError(err))
	assert.Equal(t, "E", sm.Current())

	sm.SetGuard("is_defective", model.Always(true))
	require.NoError(t, sm.Fire(ctx, "defective_op"))
	assert.Equal(t, "C", sm.Current())

	sm.SetGuard("is_defective", nil)
	ok, err := sm.EvaluateGuard(ctx, "is_defective")
	require.NoError(t, err)
	assert.False(t, ok, "clearing the override restores the real guard")
}

func TestStateMachine_SameTriggerBranches(t *testing.T) {
	ctx := context.Background()
	cell := fixtures.NewAssemblyCell()
	rec := &recorder{}
	sm, err := machine.New(fixtures.AssemblyLine(),
		machine.WithGuards(cell.Guards()),
		machine.WithActions(cell.Actions()),
		machine.WithObserver(rec))
	require.NoError(t, err)

	require.NoError(t, sm.SetState(ctx, "InspectComponent"))
	cell.BadComponent = true
	require.NoError(t, sm.Fire(ctx, "inspected_component"))
	assert.Equal(t, "DiscardComponent", sm.Current())
	assert.Equal(t, 1, cell.DefectiveCounted, "on_enter callback ran")
	assert.False(t, rec.guards["inspected_component: InspectComponent -> PlaceComponent"])
	assert.True(t, rec.guards["inspected_component: InspectComponent -> DiscardComponent"])

	require.NoError(t, sm.SetState(ctx, "InspectComponent"))
	cell.BadComponent = false
	require.NoError(t, sm.Fire(ctx, "inspected_component"))
	assert.Equal(t, "PlaceComponent", sm.Current())
}

func TestStateMachine_MissingGuardRejects(t *testing.T) {
	ctx := context.Background()
	sm, err := machine.New(fixtures.Deadlock())
	require.NoError(t, err)
	require.NoError(t, sm.SetState(ctx, "E"))

	err = sm.Fire(ctx, "go_to_F")
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrGuardMissing))
	assert.True(t, utils.IsVerificationError(err))
}

func TestStateMachine_Wildcards(t *testing.T) {
	ctx := context.Background()
	def := model.NewDefinition("w", "A", []string{"A", "B"},
		model.NewTransition("next", "A", "B"),
		model.NewTransition("reset", model.WildcardAll, "A"),
		model.NewTransition("tick", "B", model.WildcardSame),
	)
	sm, err := machine.New(def)
	require.NoError(t, err)

	require.NoError(t, sm.Fire(ctx, "next"))
	res := sm.HandleEvent(ctx, "tick")
	assert.True(t, res.Success())
	assert.False(t, res.StateChanged)
	assert.Equal(t, "B", sm.Current())

	require.NoError(t, sm.Fire(ctx, "reset"))
	assert.Equal(t, "A", sm.Current())
}

func TestStateMachine_ActionFailureRejects(t *testing.T) {
	ctx := context.Background()
	def := fixtures.Simple()
	def.Transitions[0].Before = []string{"check"}
	sm, err := machine.New(def, machine.WithActions(map[string]model.Action{
		"check": func(context.Context) error { return errors.New("not ready") },
	}))
	require.NoError(t, err)

	res := sm.HandleEvent(ctx, "go_to_B")
	assert.False(t, res.Success())
	assert.Contains(t, res.Error.Error(), "not ready")
	assert.Equal(t, "A", sm.Current())
}

func TestNew_InvalidDefinition(t *testing.T) {
	_, err := machine.New(&model.Definition{})
	require.Error(t, err)
	assert.True(t, utils.IsConfigurationError(err))
}
