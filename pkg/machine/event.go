package machine

// EventResult represents the result of firing a trigger
type EventResult struct {
	Trigger         string
	Processed       bool
	StateChanged    bool
	PreviousState   string
	CurrentState    string
	Error           error
	RejectionReason string
}

// NewEventResult creates a new event result
func NewEventResult(trigger string, processed, stateChanged bool, prevState, currentState string) *EventResult {
	return &EventResult{
		Trigger:       trigger,
		Processed:     processed,
		StateChanged:  stateChanged,
		PreviousState: prevState,
		CurrentState:  currentState,
	}
}

// WithError adds an error to the event result
func (r *EventResult) WithError(err error) *EventResult {
	r.Error = err
	return r
}

// WithRejection adds a rejection reason to the event result
func (r *EventResult) WithRejection(reason string) *EventResult {
	r.RejectionReason = reason
	r.Processed = false
	return r
}

// Success returns true if the trigger fired without error
func (r *EventResult) Success() bool {
	return r.Processed && r.Error == nil
}
