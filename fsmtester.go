// Package fsmtester verifies finite state machines. It checks the topology
// of a machine for unreachable states, sink states and nondeterministic
// transitions, then drives a live machine along every simple path and
// around every loop with guards overridden, reporting each finding as a
// failing test case.
package fsmtester

import (
	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/loader"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// Model types
type (
	// Definition describes the states and transitions of a machine
	Definition = model.Definition

	// State is a declared state
	State = model.State

	// Transition is a trigger-labelled edge between two states
	Transition = model.Transition

	// Guard is a predicate gating a transition
	Guard = model.Guard

	// Action is a callback attached to a state or transition
	Action = model.Action

	// Machine is the live machine contract
	Machine = model.Machine
)

// Suite types
type (
	// Suite is a named list of test cases
	Suite = suite.Suite

	// Report is the outcome of one suite run
	Report = suite.Report

	// Result is the outcome of one case
	Result = suite.Result

	// SuiteObserver follows suite runs
	SuiteObserver = suite.Observer
)

// Dialect names the library the live machine is built with
type Dialect = adapters.Dialect

// Dialects
const (
	Native    = adapters.Native
	Looplab   = adapters.Looplab
	Stateless = adapters.Stateless
	GoHSM     = adapters.GoHSM
)

// Wildcards
const (
	WildcardAll  = model.WildcardAll
	WildcardSame = model.WildcardSame
)

var (
	// NewDefinition creates a definition from state names and transitions
	NewDefinition = model.NewDefinition

	// NewTransition creates an unguarded transition
	NewTransition = model.NewTransition

	// Always creates a guard stub returning a constant
	Always = model.Always

	// ParseDialect maps a dialect name to a Dialect
	ParseDialect = adapters.ParseDialect

	// LoadDefinition reads a YAML or JSON definition file
	LoadDefinition = loader.Load
)
