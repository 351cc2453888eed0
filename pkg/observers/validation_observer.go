package observers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
)

// ValidationObserver checks that a live machine only moves along declared
// transitions and records which declared states it entered
type ValidationObserver struct {
	initial            string
	expectedStates     map[string]bool
	visitedStates      map[string]bool
	allowedTransitions map[string]map[string]bool
	violations         []string
	mutex              sync.RWMutex
}

var _ machine.Observer = (*ValidationObserver)(nil)

// NewValidationObserver creates a validation observer expecting the states
// and transitions of def. The initial state counts as visited.
func NewValidationObserver(def *model.Definition) *ValidationObserver {
	o := &ValidationObserver{
		initial:            def.Initial,
		expectedStates:     make(map[string]bool),
		visitedStates:      map[string]bool{def.Initial: true},
		allowedTransitions: make(map[string]map[string]bool),
	}
	for _, name := range def.StateNames() {
		o.expectedStates[name] = true
	}
	for _, t := range def.ExpandWildcards().Transitions {
		o.AddAllowedTransition(t.Source, t.Destination)
	}
	return o
}

// AddAllowedTransition adds an allowed transition
func (o *ValidationObserver) AddAllowedTransition(from, to string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[string]bool)
	}
	o.allowedTransitions[from][to] = true
}

// OnStateEnter marks the state as visited
func (o *ValidationObserver) OnStateEnter(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.expectedStates[state] {
		o.violations = append(o.violations, fmt.Sprintf("entered undeclared state '%s'", state))
	}
	o.visitedStates[state] = true
}

// OnTransition records a violation for undeclared transitions
func (o *ValidationObserver) OnTransition(from, to, trigger string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.allowedTransitions[from][to] {
		o.violations = append(o.violations, fmt.Sprintf(
			"invalid transition from '%s' to '%s' on trigger '%s'", from, to, trigger))
	}
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// GetUnvisitedStates returns the declared states never entered, sorted
func (o *ValidationObserver) GetUnvisitedStates() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []string
	for state := range o.expectedStates {
		if !o.visitedStates[state] {
			unvisited = append(unvisited, state)
		}
	}
	sort.Strings(unvisited)
	return unvisited
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedStates = map[string]bool{o.initial: true}
	o.violations = nil
}
