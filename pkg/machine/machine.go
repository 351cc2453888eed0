// Package machine provides a live state machine driven directly by a
// model.Definition. Guards resolve through a lookup table, so callers can
// override any of them by name while the machine runs.
package machine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// StateMachine implements model.Machine over a definition
type StateMachine struct {
	def          *model.Definition
	currentState string
	triggers     []string
	guards       *model.GuardTable
	actions      map[string]model.Action
	observers    observerManager
	logger       *slog.Logger
	mutex        sync.RWMutex
}

var _ model.Machine = (*StateMachine)(nil)

// Option configures a StateMachine
type Option func(*StateMachine)

// WithGuards registers real guard implementations
func WithGuards(guards map[string]model.Guard) Option {
	return func(sm *StateMachine) {
		for name, g := range guards {
			sm.guards.Register(name, g)
		}
	}
}

// WithGuardTable makes the machine resolve guards through gt
func WithGuardTable(gt *model.GuardTable) Option {
	return func(sm *StateMachine) {
		if gt != nil {
			sm.guards = gt
		}
	}
}

// WithActions registers before/after/on_enter/on_exit callbacks. Names with
// no registered action are skipped when the machine runs.
func WithActions(actions map[string]model.Action) Option {
	return func(sm *StateMachine) {
		for name, a := range actions {
			sm.actions[name] = a
		}
	}
}

// WithObserver registers an observer
func WithObserver(o Observer) Option {
	return func(sm *StateMachine) { sm.observers.add(o) }
}

// WithLogger sets the machine logger
func WithLogger(logger *slog.Logger) Option {
	return func(sm *StateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// New creates a machine in the initial state of def
func New(def *model.Definition, opts ...Option) (*StateMachine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	sm := &StateMachine{
		def:          def.Clone(),
		currentState: def.Initial,
		triggers:     def.Triggers(),
		guards:       model.NewGuardTable(nil),
		actions:      make(map[string]model.Action),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.logger = sm.logger.With("component", "machine", "machine", def.Name)
	sm.observers.logger = sm.logger

	return sm, nil
}

// safeExecuteAction executes an action with panic recovery
func safeExecuteAction(ctx context.Context, action model.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()

	return action(ctx)
}

// AddObserver registers an observer
func (sm *StateMachine) AddObserver(o Observer) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.observers.add(o)
}

// Current returns the current state
func (sm *StateMachine) Current() string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Is reports whether the machine is in state
func (sm *StateMachine) Is(state string) bool {
	return sm.Current() == state
}

// SetState forces the current state without running any callback
func (sm *StateMachine) SetState(_ context.Context, state string) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if !sm.def.HasState(state) {
		return utils.NewStateNotFoundError(state)
	}
	sm.currentState = state
	return nil
}

// Reset returns the machine to its initial state
func (sm *StateMachine) Reset(ctx context.Context) error {
	return sm.SetState(ctx, sm.def.Initial)
}

// Triggers returns every trigger the machine exposes, in declaration order
func (sm *StateMachine) Triggers() []string {
	return slices.Clone(sm.triggers)
}

// SetGuard implements model.GuardSink
func (sm *StateMachine) SetGuard(name string, guard model.Guard) {
	sm.guards.SetGuard(name, guard)
}

// EvaluateGuard implements model.GuardEvaluator
func (sm *StateMachine) EvaluateGuard(ctx context.Context, name string) (bool, error) {
	return sm.guards.Evaluate(ctx, name)
}

// Can reports whether trigger would fire from the current state
func (sm *StateMachine) Can(ctx context.Context, trigger string) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, t := range sm.candidates(trigger) {
		if ok, _ := sm.guards.Permits(ctx, t); ok {
			return true
		}
	}
	return false
}

// Fire implements model.Machine
func (sm *StateMachine) Fire(ctx context.Context, trigger string) error {
	return sm.HandleEvent(ctx, trigger).Error
}

// HandleEvent fires the first transition, in declaration order, that leaves
// the current state on trigger and whose guards permit it
func (sm *StateMachine) HandleEvent(ctx context.Context, trigger string) *EventResult {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	current := sm.currentState

	if !slices.Contains(sm.triggers, trigger) {
		reason := fmt.Sprintf("trigger %q is not declared", trigger)
		sm.observers.notifyEventRejected(trigger, reason)
		return NewEventResult(trigger, false, false, current, current).
			WithRejection(reason).
			WithError(utils.NewUnknownTriggerError(trigger))
	}

	candidates := sm.candidates(trigger)
	if len(candidates) == 0 {
		reason := fmt.Sprintf("trigger %q is not allowed from state %q", trigger, current)
		sm.observers.notifyEventRejected(trigger, reason)
		return NewEventResult(trigger, false, false, current, current).
			WithRejection(reason).
			WithError(utils.NewTransitionRejectedError(current, trigger, nil).
				WithDetail("reason", "no transition from state"))
	}

	var blocked error
	for _, t := range candidates {
		ok, err := sm.guards.Permits(ctx, t)
		sm.observers.notifyGuardEvaluation(t, ok)
		if !ok {
			blocked = err
			continue
		}
		return sm.execute(ctx, t)
	}

	reason := fmt.Sprintf("guards blocked trigger %q from state %q", trigger, current)
	sm.observers.notifyEventRejected(trigger, reason)
	return NewEventResult(trigger, false, false, current, current).
		WithRejection(reason).
		WithError(utils.NewTransitionRejectedError(current, trigger, blocked))
}

// candidates returns the transitions leaving the current state on trigger
func (sm *StateMachine) candidates(trigger string) []model.Transition {
	var out []model.Transition
	for _, t := range sm.def.Transitions {
		if t.Trigger != trigger {
			continue
		}
		if t.Source == sm.currentState || t.Source == model.WildcardAll {
			out = append(out, t)
		}
	}
	return out
}

// execute runs the callbacks of t and moves to its destination. An internal
// transition ("=" destination) runs before/after only.
func (sm *StateMachine) execute(ctx context.Context, t model.Transition) *EventResult {
	from := sm.currentState
	to := t.Destination
	internal := to == model.WildcardSame
	if internal {
		to = from
	}

	fail := func(err error) *EventResult {
		reason := fmt.Sprintf("callback failed: %v", err)
		sm.observers.notifyEventRejected(t.Trigger, reason)
		return NewEventResult(t.Trigger, false, false, from, sm.currentState).
			WithError(utils.NewTransitionRejectedError(from, t.Trigger, err))
	}

	if err := sm.runActions(ctx, t.Before); err != nil {
		return fail(err)
	}

	if !internal {
		if state, ok := sm.def.State(from); ok {
			if err := sm.runActions(ctx, state.OnExit); err != nil {
				return fail(err)
			}
		}
		sm.observers.notifyStateExit(from)
	}

	sm.currentState = to
	sm.logger.Debug("transition", "trigger", t.Trigger, "from", from, "to", to)

	if !internal {
		if state, ok := sm.def.State(to); ok {
			if err := sm.runActions(ctx, state.OnEnter); err != nil {
				return fail(err)
			}
		}
		sm.observers.notifyTransition(from, to, t.Trigger)
		sm.observers.notifyStateEnter(to)
	}

	if err := sm.runActions(ctx, t.After); err != nil {
		return fail(err)
	}

	return NewEventResult(t.Trigger, true, !internal, from, to)
}

func (sm *StateMachine) runActions(ctx context.Context, names []string) error {
	for _, name := range names {
		action, ok := sm.actions[name]
		if !ok {
			continue
		}
		if err := safeExecuteAction(ctx, action); err != nil {
			return fmt.Errorf("action %s: %w", name, err)
		}
	}
	return nil
}
