// Package suite defines data-driven verification suites: named cases that
// are run in order by a Runner and aggregated into a Report.
package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anggasct/fsmtester/pkg/utils"
)

// Case is a named, independently executable check. Run returns nil when
// the check passes, a *Failure when it fails, a *Skip when it does not
// apply and any other error when the harness itself is broken.
type Case struct {
	Name string
	Run  func(ctx context.Context) error
}

// Suite is an ordered list of cases sharing a failure-message prefix
type Suite struct {
	Name           string
	FailureMessage string
	Cases          []Case
}

// New creates an empty suite
func New(name, failureMessage string) *Suite {
	return &Suite{Name: name, FailureMessage: failureMessage}
}

// Add appends a case to the suite
func (s *Suite) Add(name string, run func(ctx context.Context) error) *Suite {
	s.Cases = append(s.Cases, Case{Name: name, Run: run})
	return s
}

// Len returns the number of cases
func (s *Suite) Len() int {
	return len(s.Cases)
}

// CaseNames returns the case names in order
func (s *Suite) CaseNames() []string {
	names := make([]string, 0, len(s.Cases))
	for _, c := range s.Cases {
		names = append(names, c.Name)
	}
	return names
}

// Failure is a verification failure. Trace holds the triggers fired before
// the failure was detected, if any.
type Failure struct {
	Message string
	Trace   []string
	Cause   error
}

// Failf creates a failure with a formatted message
func Failf(format string, args ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, args...)}
}

// WithTrace attaches the trigger trace to the failure
func (f *Failure) WithTrace(trace []string) *Failure {
	f.Trace = append([]string(nil), trace...)
	return f
}

// WithCause attaches the error that produced the failure
func (f *Failure) WithCause(err error) *Failure {
	f.Cause = err
	return f
}

// Error implements the error interface
func (f *Failure) Error() string {
	msg := f.Message
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	if len(f.Trace) > 0 {
		msg = fmt.Sprintf("%s (trace: %s)", msg, strings.Join(f.Trace, " -> "))
	}
	return msg
}

// Unwrap returns the underlying cause
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Skip marks a case that does not apply to the machine under test
type Skip struct {
	Reason string
}

// Skipf creates a skip with a formatted reason
func Skipf(format string, args ...any) *Skip {
	return &Skip{Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (s *Skip) Error() string {
	return "skipped: " + s.Reason
}

// Status is the outcome of a case
type Status int

const (
	// StatusPassed means the check held
	StatusPassed Status = iota
	// StatusFailed means the check found a defect
	StatusFailed
	// StatusSkipped means the check did not apply
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// classify maps a case error to its status. ok is false for fatal errors.
func classify(err error) (status Status, message string, trace []string, ok bool) {
	if err == nil {
		return StatusPassed, "", nil, true
	}

	var skip *Skip
	if errors.As(err, &skip) {
		return StatusSkipped, skip.Reason, nil, true
	}

	var failure *Failure
	if errors.As(err, &failure) {
		msg := failure.Message
		if failure.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, failure.Cause)
		}
		return StatusFailed, msg, failure.Trace, true
	}

	if utils.IsVerificationError(err) {
		return StatusFailed, err.Error(), nil, true
	}

	return StatusFailed, err.Error(), nil, false
}
