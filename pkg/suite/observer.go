package suite

import (
	"fmt"
	"log/slog"
)

// Observer follows the lifecycle of suite runs
type Observer interface {
	// OnSuiteStarted is called before the first case runs
	OnSuiteStarted(s *Suite)

	// OnCaseFinished is called after every case, whatever its outcome
	OnCaseFinished(s *Suite, result Result)

	// OnSuiteFinished is called once the report is complete
	OnSuiteFinished(s *Suite, report *Report)
}

// BaseObserver provides no-op implementations to embed
type BaseObserver struct{}

// OnSuiteStarted implements Observer
func (o *BaseObserver) OnSuiteStarted(s *Suite) {}

// OnCaseFinished implements Observer
func (o *BaseObserver) OnCaseFinished(s *Suite, result Result) {}

// OnSuiteFinished implements Observer
func (o *BaseObserver) OnSuiteFinished(s *Suite, report *Report) {}

// observerManager fans events out to observers. A panicking observer is
// logged and skipped; it never aborts the run.
type observerManager struct {
	observers []Observer
	logger    *slog.Logger
}

func (om *observerManager) add(o Observer) {
	if o != nil {
		om.observers = append(om.observers, o)
	}
}

func (om *observerManager) notify(event string, fn func(o Observer)) {
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)

	for _, observer := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					om.logger.Error("observer panic",
						"event", event,
						"error", fmt.Sprint(r))
				}
			}()
			fn(observer)
		}()
	}
}

func (om *observerManager) suiteStarted(s *Suite) {
	om.notify("suite_started", func(o Observer) { o.OnSuiteStarted(s) })
}

func (om *observerManager) caseFinished(s *Suite, result Result) {
	om.notify("case_finished", func(o Observer) { o.OnCaseFinished(s, result) })
}

func (om *observerManager) suiteFinished(s *Suite, report *Report) {
	om.notify("suite_finished", func(o Observer) { o.OnSuiteFinished(s, report) })
}
