package fsmtester

import (
	"context"
	"testing"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

func TestTestHelpers_Functions(t *testing.T) {
	t.Run("TestObserver Basic Functionality", func(t *testing.T) {
		observer := NewTestObserver()

		if observer.TransitionCount() != 0 {
			t.Errorf("Expected 0 transitions initially, got %d", observer.TransitionCount())
		}

		observer.OnTransition("A", "B", "go_to_B")
		observer.OnStateEnter("B")
		observer.OnStateExit("A")
		observer.OnGuardEvaluation(model.NewTransition("go_to_B", "A", "B"), true)
		observer.OnEventRejected("go_to_C", "not allowed")

		if observer.TransitionCount() != 1 {
			t.Errorf("Expected 1 transition, got %d", observer.TransitionCount())
		}
		if !observer.VisitedStates()["B"] {
			t.Error("Expected B to be visited")
		}
		if len(observer.Guards) != 1 || !observer.Guards[0].Permitted {
			t.Errorf("Expected 1 permitted guard evaluation, got %v", observer.Guards)
		}
		if len(observer.EventRejects) != 1 {
			t.Errorf("Expected 1 event rejection, got %d", len(observer.EventRejects))
		}

		observer.Reset()
		if observer.TransitionCount() != 0 || len(observer.StateExits) != 0 {
			t.Error("Expected observer to be empty after reset")
		}
	})

	t.Run("Suite events and report lookup", func(t *testing.T) {
		observer := NewTestObserver()
		s := suite.New("sample", "Sample").
			Add("ok", func(context.Context) error { return nil }).
			Add("skip", func(context.Context) error { return suite.Skipf("n/a") })

		report, err := suite.NewRunner(suite.WithObservers(observer)).Run(context.Background(), s)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		AssertPassed(t, report)
		AssertFailedCases(t, report)

		if got := observer.SuiteNames(); len(got) != 1 || got[0] != "sample" {
			t.Errorf("Expected suite sample to be observed, got %v", got)
		}
		if observer.CaseCount(suite.StatusSkipped) != 1 {
			t.Errorf("Expected 1 skipped case, got %d", observer.CaseCount(suite.StatusSkipped))
		}
		if ReportFor([]*suite.Report{report}, "sample") != report {
			t.Error("Expected ReportFor to find the sample report")
		}
		if ReportFor(nil, "sample") != nil {
			t.Error("Expected ReportFor to return nil for missing reports")
		}
	})
}
