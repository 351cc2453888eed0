package machine

import (
	"fmt"
	"log/slog"

	"github.com/anggasct/fsmtester/pkg/model"
)

// Observer represents an entity that observes a live machine
type Observer interface {
	// OnTransition is called after a transition fired
	OnTransition(from, to, trigger string)

	// OnStateEnter is called when entering a state
	OnStateEnter(state string)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnStateExit is called when leaving a state
	OnStateExit(state string)

	// OnGuardEvaluation is called after the guards of a candidate transition ran
	OnGuardEvaluation(t model.Transition, permitted bool)

	// OnEventRejected is called when a trigger could not fire
	OnEventRejected(trigger, reason string)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements Observer
func (o *BaseObserver) OnTransition(from, to, trigger string) {}

// OnStateEnter implements Observer
func (o *BaseObserver) OnStateEnter(state string) {}

// OnStateExit implements ExtendedObserver
func (o *BaseObserver) OnStateExit(state string) {}

// OnGuardEvaluation implements ExtendedObserver
func (o *BaseObserver) OnGuardEvaluation(t model.Transition, permitted bool) {}

// OnEventRejected implements ExtendedObserver
func (o *BaseObserver) OnEventRejected(trigger, reason string) {}

// observerManager manages a collection of observers
type observerManager struct {
	observers []Observer
	logger    *slog.Logger
}

func (om *observerManager) add(observer Observer) {
	if observer != nil {
		om.observers = append(om.observers, observer)
	}
}

// each calls fn for every observer, containing panics
func (om *observerManager) each(event string, fn func(Observer)) {
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)

	for _, observer := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					om.logger.Error("observer panic", "event", event, "error", fmt.Sprint(r))
				}
			}()
			fn(observer)
		}()
	}
}

// eachExtended calls fn for every observer implementing ExtendedObserver
func (om *observerManager) eachExtended(event string, fn func(ExtendedObserver)) {
	om.each(event, func(o Observer) {
		if ext, ok := o.(ExtendedObserver); ok {
			fn(ext)
		}
	})
}

func (om *observerManager) notifyTransition(from, to, trigger string) {
	om.each("transition", func(o Observer) { o.OnTransition(from, to, trigger) })
}

func (om *observerManager) notifyStateEnter(state string) {
	om.each("state_enter", func(o Observer) { o.OnStateEnter(state) })
}

func (om *observerManager) notifyStateExit(state string) {
	om.eachExtended("state_exit", func(o ExtendedObserver) { o.OnStateExit(state) })
}

func (om *observerManager) notifyGuardEvaluation(t model.Transition, permitted bool) {
	om.eachExtended("guard_evaluation", func(o ExtendedObserver) { o.OnGuardEvaluation(t, permitted) })
}

func (om *observerManager) notifyEventRejected(trigger, reason string) {
	om.eachExtended("event_rejected", func(o ExtendedObserver) { o.OnEventRejected(trigger, reason) })
}
