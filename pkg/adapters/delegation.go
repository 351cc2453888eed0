package adapters

import (
	"context"
	"fmt"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// DelegateKind tells what a delegate does when called
type DelegateKind int

const (
	// DelegateTrigger fires a trigger
	DelegateTrigger DelegateKind = iota
	// DelegateMayTrigger reports whether a trigger would fire
	DelegateMayTrigger
	// DelegateIs reports whether the machine is in a state
	DelegateIs
	// DelegateTo forces the machine into a state
	DelegateTo
	// DelegateMayTo reports whether the machine can be forced into a state
	DelegateMayTo
	// DelegateGuard evaluates a guard by name
	DelegateGuard
)

func (k DelegateKind) String() string {
	switch k {
	case DelegateTrigger:
		return "trigger"
	case DelegateMayTrigger:
		return "may_trigger"
	case DelegateIs:
		return "is"
	case DelegateTo:
		return "to"
	case DelegateMayTo:
		return "may_to"
	case DelegateGuard:
		return "guard"
	default:
		return "unknown"
	}
}

// Delegate is a named accessor bound to a live machine
type Delegate struct {
	Name   string
	Kind   DelegateKind
	Target string
	call   func(ctx context.Context) (bool, error)
}

// Call invokes the accessor
func (d Delegate) Call(ctx context.Context) (bool, error) {
	return d.call(ctx)
}

// DelegationTable maps the names a machine answers to (triggers, guard
// names and the generated is_/to_/may_ helpers) onto bound accessors. It
// is built once from the declared definition; nothing is discovered by
// reflection at run time.
type DelegationTable struct {
	machine   model.Machine
	delegates map[string]Delegate
	order     []string
}

// NewDelegationTable builds the table for m. Triggers declared by def that
// m does not expose are left out, so firing them fails as unknown.
func NewDelegationTable(def *model.Definition, m model.Machine) *DelegationTable {
	dt := &DelegationTable{
		machine:   m,
		delegates: make(map[string]Delegate),
	}

	exposed := make(map[string]bool)
	for _, trigger := range m.Triggers() {
		exposed[trigger] = true
	}

	for _, trigger := range def.Triggers() {
		if !exposed[trigger] {
			continue
		}
		trigger := trigger
		dt.add(Delegate{Name: trigger, Kind: DelegateTrigger, Target: trigger,
			call: func(ctx context.Context) (bool, error) {
				if err := m.Fire(ctx, trigger); err != nil {
					return false, err
				}
				return true, nil
			}})
		dt.add(Delegate{Name: "may_" + trigger, Kind: DelegateMayTrigger, Target: trigger,
			call: func(ctx context.Context) (bool, error) {
				return m.Can(ctx, trigger), nil
			}})
	}

	for _, state := range def.StateNames() {
		state := state
		dt.add(Delegate{Name: "is_" + state, Kind: DelegateIs, Target: state,
			call: func(context.Context) (bool, error) {
				return m.Current() == state, nil
			}})
		dt.add(Delegate{Name: "to_" + state, Kind: DelegateTo, Target: state,
			call: func(ctx context.Context) (bool, error) {
				if err := m.SetState(ctx, state); err != nil {
					return false, err
				}
				return true, nil
			}})
		dt.add(Delegate{Name: "may_to_" + state, Kind: DelegateMayTo, Target: state,
			call: func(context.Context) (bool, error) {
				return true, nil
			}})
	}

	if ev, ok := m.(model.GuardEvaluator); ok {
		for _, guard := range def.GuardNames() {
			guard := guard
			dt.add(Delegate{Name: guard, Kind: DelegateGuard, Target: guard,
				call: func(ctx context.Context) (bool, error) {
					return ev.EvaluateGuard(ctx, guard)
				}})
		}
	}

	return dt
}

// add registers d unless its name is already taken; earlier entries win
func (dt *DelegationTable) add(d Delegate) {
	if _, taken := dt.delegates[d.Name]; taken {
		return
	}
	dt.delegates[d.Name] = d
	dt.order = append(dt.order, d.Name)
}

// Names returns the registered names in registration order
func (dt *DelegationTable) Names() []string {
	out := make([]string, len(dt.order))
	copy(out, dt.order)
	return out
}

// Lookup returns the delegate registered under name
func (dt *DelegationTable) Lookup(name string) (Delegate, bool) {
	d, ok := dt.delegates[name]
	return d, ok
}

// Call invokes the delegate registered under name
func (dt *DelegationTable) Call(ctx context.Context, name string) (bool, error) {
	d, ok := dt.delegates[name]
	if !ok {
		return false, fmt.Errorf("no delegate named %q: %w", name, utils.ErrUnknownTrigger)
	}
	return d.Call(ctx)
}

// Trigger fires trigger through the table. A name that is not a trigger
// the machine exposes is an unknown-trigger error.
func (dt *DelegationTable) Trigger(ctx context.Context, trigger string) error {
	d, ok := dt.delegates[trigger]
	if !ok || d.Kind != DelegateTrigger {
		return utils.NewUnknownTriggerError(trigger)
	}
	_, err := d.Call(ctx)
	return err
}

// Machine returns the live machine behind the table
func (dt *DelegationTable) Machine() model.Machine {
	return dt.machine
}
