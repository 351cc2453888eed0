package model

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/anggasct/fsmtester/pkg/utils"
)

// GuardTable resolves guard names for a live machine. Overrides installed
// through SetGuard shadow the registered implementations until cleared.
type GuardTable struct {
	guards    map[string]Guard
	overrides map[string]Guard
	mutex     sync.RWMutex
}

// NewGuardTable creates a table holding the given guard implementations
func NewGuardTable(guards map[string]Guard) *GuardTable {
	gt := &GuardTable{
		guards:    make(map[string]Guard, len(guards)),
		overrides: make(map[string]Guard),
	}
	for name, g := range guards {
		if g != nil {
			gt.guards[name] = g
		}
	}
	return gt
}

// Register adds or replaces the implementation of a guard
func (gt *GuardTable) Register(name string, guard Guard) {
	gt.mutex.Lock()
	defer gt.mutex.Unlock()

	if guard == nil {
		delete(gt.guards, name)
		return
	}
	gt.guards[name] = guard
}

// SetGuard implements GuardSink
func (gt *GuardTable) SetGuard(name string, guard Guard) {
	gt.mutex.Lock()
	defer gt.mutex.Unlock()

	if guard == nil {
		delete(gt.overrides, name)
		return
	}
	gt.overrides[name] = guard
}

// Overridden returns the names currently shadowed by an override, sorted
func (gt *GuardTable) Overridden() []string {
	gt.mutex.RLock()
	defer gt.mutex.RUnlock()

	names := make([]string, 0, len(gt.overrides))
	for name := range gt.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name resolves to an override or an implementation
func (gt *GuardTable) Has(name string) bool {
	gt.mutex.RLock()
	defer gt.mutex.RUnlock()

	_, overridden := gt.overrides[name]
	_, registered := gt.guards[name]
	return overridden || registered
}

// Evaluate resolves and runs the guard called name
func (gt *GuardTable) Evaluate(ctx context.Context, name string) (bool, error) {
	gt.mutex.RLock()
	guard, ok := gt.overrides[name]
	if !ok {
		guard, ok = gt.guards[name]
	}
	gt.mutex.RUnlock()

	if !ok {
		return false, utils.NewGuardMissingError(name)
	}
	return safeEvaluateGuard(ctx, guard)
}

// EvaluateGuard implements GuardEvaluator
func (gt *GuardTable) EvaluateGuard(ctx context.Context, name string) (bool, error) {
	return gt.Evaluate(ctx, name)
}

// Permits reports whether every condition of t holds and every unless guard
// fails. The returned error names the first guard that blocked t.
func (gt *GuardTable) Permits(ctx context.Context, t Transition) (bool, error) {
	for _, name := range t.Conditions {
		ok, err := gt.Evaluate(ctx, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, utils.NewGuardRejectedError(t.Source, t.Trigger, name)
		}
	}

	for _, name := range t.Unless {
		ok, err := gt.Evaluate(ctx, name)
		if err != nil {
			return false, err
		}
		if ok {
			return false, utils.NewGuardRejectedError(t.Source, t.Trigger, name).
				WithDetail("unless", true)
		}
	}

	return true, nil
}

// safeEvaluateGuard evaluates a guard with panic recovery
func safeEvaluateGuard(ctx context.Context, guard Guard) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()

	return guard(ctx), nil
}
