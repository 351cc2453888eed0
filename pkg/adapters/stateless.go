package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// StatelessMachine runs a definition on github.com/qmuntal/stateless. The
// current state lives outside the library so it can be forced between
// simulated paths.
type StatelessMachine struct {
	sm       *stateless.StateMachine
	def      *model.Definition
	guards   *model.GuardTable
	triggers []string
	logger   *slog.Logger

	state string
	mutex sync.RWMutex
}

var _ model.Machine = (*StatelessMachine)(nil)

// NewStateless builds the machine. Self-loops become reentry transitions;
// every guarded transition gets a single guard evaluating its conditions and
// unless lists through the guard table.
func NewStateless(def *model.Definition, guards *model.GuardTable, logger *slog.Logger) (*StatelessMachine, error) {
	m := &StatelessMachine{
		def:      def,
		guards:   guards,
		triggers: def.Triggers(),
		logger:   logger,
		state:    def.Initial,
	}

	m.sm = stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) {
			m.mutex.RLock()
			defer m.mutex.RUnlock()
			return m.state, nil
		},
		func(_ context.Context, s stateless.State) error {
			name, ok := s.(string)
			if !ok {
				return fmt.Errorf("unexpected state type %T", s)
			}
			m.mutex.Lock()
			defer m.mutex.Unlock()
			m.state = name
			return nil
		},
		stateless.FiringImmediate,
	)

	for _, s := range def.States {
		m.sm.Configure(s.Name)
	}

	var configured []model.Transition
	for _, t := range def.Transitions {
		if slices.ContainsFunc(configured, t.Same) {
			continue
		}
		configured = append(configured, t)

		var guardFns []stateless.GuardFunc
		if t.Guarded() {
			guardFns = append(guardFns, m.guardFor(t))
		}

		cfg := m.sm.Configure(t.Source)
		if t.IsSelfLoop() {
			cfg.PermitReentry(t.Trigger, guardFns...)
		} else {
			cfg.Permit(t.Trigger, t.Destination, guardFns...)
		}
	}

	return m, nil
}

func (m *StatelessMachine) guardFor(t model.Transition) stateless.GuardFunc {
	return func(ctx context.Context, _ ...any) bool {
		ok, err := m.guards.Permits(ctx, t)
		if err != nil {
			m.logger.Debug("guard blocked transition", "transition", t.String(), "error", err)
		}
		return ok
	}
}

// Current implements model.Machine
func (m *StatelessMachine) Current() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.state
}

// SetState implements model.Machine
func (m *StatelessMachine) SetState(_ context.Context, state string) error {
	if !m.def.HasState(state) {
		return utils.NewStateNotFoundError(state)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.state = state
	return nil
}

// Triggers implements model.Machine
func (m *StatelessMachine) Triggers() []string {
	return slices.Clone(m.triggers)
}

// SetGuard implements model.GuardSink
func (m *StatelessMachine) SetGuard(name string, guard model.Guard) {
	m.guards.SetGuard(name, guard)
}

// EvaluateGuard implements model.GuardEvaluator
func (m *StatelessMachine) EvaluateGuard(ctx context.Context, name string) (bool, error) {
	return m.guards.Evaluate(ctx, name)
}

// Can implements model.Machine
func (m *StatelessMachine) Can(ctx context.Context, trigger string) bool {
	ok, err := m.sm.CanFireCtx(ctx, trigger)
	return err == nil && ok
}

// Fire implements model.Machine
func (m *StatelessMachine) Fire(ctx context.Context, trigger string) (err error) {
	source := m.Current()
	if !slices.Contains(m.triggers, trigger) {
		return utils.NewUnknownTriggerError(trigger)
	}

	defer func() {
		if r := recover(); r != nil {
			err = utils.NewTransitionRejectedError(source, trigger, fmt.Errorf("%v", r))
		}
	}()

	if fireErr := m.sm.FireCtx(ctx, trigger); fireErr != nil {
		return utils.NewTransitionRejectedError(source, trigger, fireErr)
	}
	return nil
}
