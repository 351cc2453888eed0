package adapters

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/looplab/fsm"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

type routeKey struct {
	trigger string
	source  string
}

// LooplabMachine runs a definition on github.com/looplab/fsm. Guards are
// evaluated in the before_event callback, which cancels the event when they
// do not permit it.
type LooplabMachine struct {
	fsm      *fsm.FSM
	def      *model.Definition
	guards   *model.GuardTable
	routes   map[routeKey]model.Transition
	triggers []string
	logger   *slog.Logger
}

var _ model.Machine = (*LooplabMachine)(nil)

// NewLooplab builds the machine. looplab/fsm keys transitions by trigger and
// source, so a definition that branches one trigger from one state to
// several destinations cannot be expressed and is a configuration error.
func NewLooplab(def *model.Definition, guards *model.GuardTable, logger *slog.Logger) (*LooplabMachine, error) {
	m := &LooplabMachine{
		def:      def,
		guards:   guards,
		routes:   make(map[routeKey]model.Transition),
		triggers: def.Triggers(),
		logger:   logger,
	}

	var events fsm.Events
	for _, t := range def.Transitions {
		key := routeKey{trigger: t.Trigger, source: t.Source}
		if prev, dup := m.routes[key]; dup {
			if prev.Same(t) {
				continue
			}
			return nil, utils.NewConfigurationErrorf(
				"looplab dialect cannot branch trigger %q from %q to both %q and %q",
				t.Trigger, t.Source, prev.Destination, t.Destination)
		}
		m.routes[key] = t
		events = append(events, fsm.EventDesc{
			Name: t.Trigger,
			Src:  []string{t.Source},
			Dst:  t.Destination,
		})
	}

	m.fsm = fsm.NewFSM(def.Initial, events, fsm.Callbacks{
		"before_event": m.beforeEvent,
	})

	return m, nil
}

func (m *LooplabMachine) beforeEvent(ctx context.Context, e *fsm.Event) {
	t, ok := m.routes[routeKey{trigger: e.Event, source: e.Src}]
	if !ok {
		return
	}
	if permitted, err := m.guards.Permits(ctx, t); !permitted {
		e.Cancel(err)
	}
}

// Current implements model.Machine
func (m *LooplabMachine) Current() string {
	return m.fsm.Current()
}

// SetState implements model.Machine
func (m *LooplabMachine) SetState(_ context.Context, state string) error {
	if !m.def.HasState(state) {
		return utils.NewStateNotFoundError(state)
	}
	m.fsm.SetState(state)
	return nil
}

// Triggers implements model.Machine
func (m *LooplabMachine) Triggers() []string {
	return slices.Clone(m.triggers)
}

// SetGuard implements model.GuardSink
func (m *LooplabMachine) SetGuard(name string, guard model.Guard) {
	m.guards.SetGuard(name, guard)
}

// EvaluateGuard implements model.GuardEvaluator
func (m *LooplabMachine) EvaluateGuard(ctx context.Context, name string) (bool, error) {
	return m.guards.Evaluate(ctx, name)
}

// Can implements model.Machine
func (m *LooplabMachine) Can(ctx context.Context, trigger string) bool {
	if !m.fsm.Can(trigger) {
		return false
	}
	t := m.routes[routeKey{trigger: trigger, source: m.fsm.Current()}]
	ok, _ := m.guards.Permits(ctx, t)
	return ok
}

// Fire implements model.Machine
func (m *LooplabMachine) Fire(ctx context.Context, trigger string) error {
	source := m.fsm.Current()
	if !slices.Contains(m.triggers, trigger) {
		return utils.NewUnknownTriggerError(trigger)
	}

	err := m.fsm.Event(ctx, trigger)
	if err == nil {
		return nil
	}

	var (
		noTransition fsm.NoTransitionError
		unknown      fsm.UnknownEventError
		invalid      fsm.InvalidEventError
		canceled     fsm.CanceledError
	)
	switch {
	case errors.As(err, &noTransition) && noTransition.Err == nil:
		// self-loop: looplab reports it but the transition did fire
		return nil
	case errors.As(err, &unknown):
		return utils.NewUnknownTriggerError(trigger).WithCause(err)
	case errors.As(err, &canceled):
		cause := canceled.Err
		if cause == nil {
			cause = err
		}
		return utils.NewTransitionRejectedError(source, trigger, cause)
	case errors.As(err, &invalid):
		return utils.NewTransitionRejectedError(source, trigger, err).
			WithDetail("reason", "no transition from state")
	default:
		m.logger.Debug("looplab event failed", "trigger", trigger, "error", err)
		return utils.NewTransitionRejectedError(source, trigger, err)
	}
}
