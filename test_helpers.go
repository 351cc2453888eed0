package fsmtester

import (
	"sync"
	"testing"

	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// TestObserver records suite and machine events for assertions
type TestObserver struct {
	mutex        sync.RWMutex
	Transitions  []TransitionEvent
	StateEnters  []string
	StateExits   []string
	EventRejects []EventRejectEvent
	Guards       []GuardEvent
	Suites       []string
	Cases        []suite.Result
	Reports      []*suite.Report
}

type TransitionEvent struct {
	From    string
	To      string
	Trigger string
}

type EventRejectEvent struct {
	Trigger string
	Reason  string
}

type GuardEvent struct {
	Transition model.Transition
	Permitted  bool
}

var (
	_ suite.Observer           = (*TestObserver)(nil)
	_ machine.ExtendedObserver = (*TestObserver)(nil)
)

// NewTestObserver creates a new test observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

// Machine observer implementations
func (o *TestObserver) OnTransition(from, to, trigger string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, TransitionEvent{From: from, To: to, Trigger: trigger})
}

func (o *TestObserver) OnStateEnter(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.StateEnters = append(o.StateEnters, state)
}

func (o *TestObserver) OnStateExit(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.StateExits = append(o.StateExits, state)
}

func (o *TestObserver) OnGuardEvaluation(t model.Transition, permitted bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Guards = append(o.Guards, GuardEvent{Transition: t, Permitted: permitted})
}

func (o *TestObserver) OnEventRejected(trigger, reason string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.EventRejects = append(o.EventRejects, EventRejectEvent{Trigger: trigger, Reason: reason})
}

// Suite observer implementations
func (o *TestObserver) OnSuiteStarted(s *suite.Suite) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Suites = append(o.Suites, s.Name)
}

func (o *TestObserver) OnCaseFinished(s *suite.Suite, result suite.Result) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Cases = append(o.Cases, result)
}

func (o *TestObserver) OnSuiteFinished(s *suite.Suite, report *suite.Report) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Reports = append(o.Reports, report)
}

// Helper methods for test assertions
func (o *TestObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = nil
	o.StateEnters = nil
	o.StateExits = nil
	o.EventRejects = nil
	o.Guards = nil
	o.Suites = nil
	o.Cases = nil
	o.Reports = nil
}

func (o *TestObserver) TransitionCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Transitions)
}

func (o *TestObserver) VisitedStates() map[string]bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	visited := make(map[string]bool, len(o.StateEnters))
	for _, s := range o.StateEnters {
		visited[s] = true
	}
	return visited
}

func (o *TestObserver) SuiteNames() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return append([]string(nil), o.Suites...)
}

func (o *TestObserver) CaseCount(status suite.Status) int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	n := 0
	for _, c := range o.Cases {
		if c.Status == status {
			n++
		}
	}
	return n
}

// Test assertions and utilities

// AssertPassed fails the test when report has failing cases or was aborted
func AssertPassed(t *testing.T, report *suite.Report) {
	t.Helper()
	if report == nil {
		t.Fatal("Expected a report, got nil")
	}
	if !report.Passed() {
		t.Errorf("Expected suite %s to pass, got %s (aborted: %v)", report.Suite, report.Summary(), report.Aborted)
	}
}

// AssertFailedCases checks the failing cases of report, in run order
func AssertFailedCases(t *testing.T, report *suite.Report, expected ...string) {
	t.Helper()
	failures := report.Failures()
	if len(failures) != len(expected) {
		t.Errorf("Expected %d failing cases in %s, got %d: %s", len(expected), report.Suite, len(failures), report.Summary())
		return
	}
	for i, f := range failures {
		if f.Case != expected[i] {
			t.Errorf("Expected failing case %d of %s to be %s, got %s", i, report.Suite, expected[i], f.Case)
		}
	}
}

// ReportFor returns the report of the named suite, or nil
func ReportFor(reports []*suite.Report, name string) *suite.Report {
	for _, r := range reports {
		if r.Suite == name {
			return r
		}
	}
	return nil
}
