package model

import "context"

// Guard is a predicate gating a transition
type Guard func(ctx context.Context) bool

// Action is a before/after/on_enter/on_exit callback
type Action func(ctx context.Context) error

// Always returns a guard stub that ignores its input and returns v
func Always(v bool) Guard {
	return func(context.Context) bool { return v }
}

// GuardSink receives guard overrides. Passing a nil guard removes the
// override for name and restores whatever the machine resolved before.
type GuardSink interface {
	SetGuard(name string, guard Guard)
}

// Machine is the live, stateful machine under test
type Machine interface {
	GuardSink

	// Current returns the name of the current state
	Current() string
	// SetState forces the current state without firing any transition
	SetState(ctx context.Context, state string) error
	// Fire invokes trigger from the current state
	Fire(ctx context.Context, trigger string) error
	// Can reports whether trigger would fire from the current state
	Can(ctx context.Context, trigger string) bool
	// Triggers lists every trigger the machine exposes
	Triggers() []string
}

// GuardEvaluator is implemented by machines that can evaluate a guard by name
type GuardEvaluator interface {
	EvaluateGuard(ctx context.Context, name string) (bool, error)
}
