package observers

import (
	"sync"
	"time"

	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// MetricsObserver collects counters about suite runs and the machine
// activity they cause
type MetricsObserver struct {
	stateVisits      map[string]int
	stateTimeSpent   map[string]time.Duration
	transitionCounts map[string]int
	rejectedCounts   map[string]int
	guardEvaluations int
	lastStateEntry   map[string]time.Time

	caseCounts    map[suite.Status]int
	suiteDuration map[string]time.Duration
	abortedSuites int

	mutex sync.RWMutex
}

var (
	_ suite.Observer           = (*MetricsObserver)(nil)
	_ machine.ExtendedObserver = (*MetricsObserver)(nil)
)

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{}
	o.Reset()
	return o
}

// OnStateEnter records state entry metrics
func (o *MetricsObserver) OnStateEnter(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stateVisits[state]++
	o.lastStateEntry[state] = time.Now()
}

// OnStateExit records state exit metrics
func (o *MetricsObserver) OnStateExit(state string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if entryTime, ok := o.lastStateEntry[state]; ok {
		o.stateTimeSpent[state] += time.Since(entryTime)
		delete(o.lastStateEntry, state)
	}
}

// OnTransition records transition metrics
func (o *MetricsObserver) OnTransition(from, to, trigger string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.transitionCounts[from+"->"+to]++
}

// OnGuardEvaluation counts guard evaluations
func (o *MetricsObserver) OnGuardEvaluation(t model.Transition, permitted bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.guardEvaluations++
}

// OnEventRejected counts rejected triggers
func (o *MetricsObserver) OnEventRejected(trigger, reason string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.rejectedCounts[trigger]++
}

// OnSuiteStarted implements suite.Observer
func (o *MetricsObserver) OnSuiteStarted(s *suite.Suite) {}

// OnCaseFinished counts case outcomes
func (o *MetricsObserver) OnCaseFinished(s *suite.Suite, result suite.Result) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.caseCounts[result.Status]++
}

// OnSuiteFinished records suite durations
func (o *MetricsObserver) OnSuiteFinished(s *suite.Suite, report *suite.Report) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.suiteDuration[s.Name] += report.Duration
	if report.Aborted {
		o.abortedSuites++
	}
}

// GetStateVisitCounts returns the number of times each state was entered
func (o *MetricsObserver) GetStateVisitCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.stateVisits)
}

// GetStateTimeSpent returns the time spent in each state
func (o *MetricsObserver) GetStateTimeSpent() map[string]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.stateTimeSpent)
}

// GetTransitionCounts returns the number of times each "from->to" pair fired
func (o *MetricsObserver) GetTransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.transitionCounts)
}

// GetRejectedCounts returns the number of rejections per trigger
func (o *MetricsObserver) GetRejectedCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.rejectedCounts)
}

// GetGuardEvaluations returns how many candidate transitions had their
// guards evaluated
func (o *MetricsObserver) GetGuardEvaluations() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.guardEvaluations
}

// GetCaseCounts returns the number of cases per status
func (o *MetricsObserver) GetCaseCounts() map[suite.Status]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.caseCounts)
}

// GetSuiteDurations returns the accumulated run time per suite
func (o *MetricsObserver) GetSuiteDurations() map[string]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return copyMap(o.suiteDuration)
}

// GetAbortedSuites returns how many suite runs were aborted
func (o *MetricsObserver) GetAbortedSuites() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return o.abortedSuites
}

// Reset resets all metrics
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stateVisits = make(map[string]int)
	o.stateTimeSpent = make(map[string]time.Duration)
	o.transitionCounts = make(map[string]int)
	o.rejectedCounts = make(map[string]int)
	o.guardEvaluations = 0
	o.lastStateEntry = make(map[string]time.Time)
	o.caseCounts = make(map[suite.Status]int)
	o.suiteDuration = make(map[string]time.Duration)
	o.abortedSuites = 0
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	result := make(map[K]V, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
