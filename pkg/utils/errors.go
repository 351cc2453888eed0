// Package utils provides the error taxonomy shared by every fsmtester package
package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error by how the verification session must react to it
type Kind int

const (
	// KindConfiguration errors abort the session at construction
	KindConfiguration Kind = iota
	// KindModel errors abort the construction of the suite that hit them
	KindModel
	// KindVerification errors are collected per test case
	KindVerification
	// KindExecution errors indicate a misconfigured harness and abort the run
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindModel:
		return "model"
	case KindVerification:
		return "verification"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error codes
const (
	CodeConfiguration         = "CONFIGURATION_ERROR"
	CodeUnknownDialect        = "UNKNOWN_DIALECT"
	CodeDialectNotImplemented = "DIALECT_NOT_IMPLEMENTED"
	CodeStateNotFound         = "STATE_NOT_FOUND"
	CodeDuplicateState        = "DUPLICATE_STATE"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeTransitionNotFound    = "TRANSITION_NOT_FOUND"
	CodeAmbiguousTransition   = "AMBIGUOUS_TRANSITION"
	CodeUnknownTrigger        = "UNKNOWN_TRIGGER"
	CodeGuardMissing          = "GUARD_MISSING"
	CodeGuardRejected         = "GUARD_REJECTED"
	CodeTransitionRejected    = "TRANSITION_REJECTED"
	CodeUnknownSuite          = "UNKNOWN_SUITE"
	CodeVerificationFailed    = "VERIFICATION_FAILED"
)

var codeKinds = map[string]Kind{
	CodeConfiguration:         KindConfiguration,
	CodeUnknownDialect:        KindConfiguration,
	CodeDialectNotImplemented: KindConfiguration,
	CodeUnknownSuite:          KindConfiguration,
	CodeStateNotFound:         KindModel,
	CodeDuplicateState:        KindModel,
	CodeInvalidTransition:     KindModel,
	CodeTransitionNotFound:    KindModel,
	CodeAmbiguousTransition:   KindModel,
	CodeGuardMissing:          KindVerification,
	CodeGuardRejected:         KindVerification,
	CodeTransitionRejected:    KindVerification,
	CodeVerificationFailed:    KindVerification,
	CodeUnknownTrigger:        KindExecution,
}

// Error is the structured error returned across fsmtester packages
type Error struct {
	Code    string
	Message string
	State   string
	Trigger string
	Cause   error
	Details map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.State != "" {
		parts = append(parts, fmt.Sprintf("state: %s", e.State))
	}

	if e.Trigger != "" {
		parts = append(parts, fmt.Sprintf("trigger: %s", e.Trigger))
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		details := make([]string, 0, len(keys))
		for _, k := range keys {
			details = append(details, fmt.Sprintf("%s=%v", k, e.Details[k]))
		}
		parts = append(parts, fmt.Sprintf("details: {%s}", strings.Join(details, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Kind returns the taxonomy bucket of the error code
func (e *Error) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindExecution
}

// WithState adds state information to the error
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// WithTrigger adds trigger information to the error
func (e *Error) WithTrigger(trigger string) *Error {
	e.Trigger = trigger
	return e
}

// WithCause adds cause information to the error
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinel errors usable with errors.Is
var (
	// ErrConfiguration matches any configuration error
	ErrConfiguration = &Error{Code: CodeConfiguration, Message: "invalid configuration"}

	// ErrUnknownDialect is returned when no adapter exists for a dialect name
	ErrUnknownDialect = &Error{Code: CodeUnknownDialect, Message: "unknown dialect"}

	// ErrDialectNotImplemented is returned for recognised dialects without an adapter
	ErrDialectNotImplemented = &Error{Code: CodeDialectNotImplemented, Message: "dialect not implemented"}

	// ErrStateNotFound is returned when a referenced state is not declared
	ErrStateNotFound = &Error{Code: CodeStateNotFound, Message: "state not found"}

	// ErrTransitionNotFound is returned when no transition links two states
	ErrTransitionNotFound = &Error{Code: CodeTransitionNotFound, Message: "transition not found"}

	// ErrAmbiguousTransition is returned when more than one transition links two states
	ErrAmbiguousTransition = &Error{Code: CodeAmbiguousTransition, Message: "ambiguous transition"}

	// ErrUnknownTrigger is returned when the live machine does not expose a trigger
	ErrUnknownTrigger = &Error{Code: CodeUnknownTrigger, Message: "unknown trigger"}

	// ErrGuardMissing is returned when a guard name has no implementation or override
	ErrGuardMissing = &Error{Code: CodeGuardMissing, Message: "guard not registered"}

	// ErrTransitionRejected is returned when the live machine refuses to fire
	ErrTransitionRejected = &Error{Code: CodeTransitionRejected, Message: "transition rejected"}

	// ErrUnknownSuite is returned for suite names the session does not know
	ErrUnknownSuite = &Error{Code: CodeUnknownSuite, Message: "unknown suite"}

	// ErrVerificationFailed is returned when one or more suites report failures
	ErrVerificationFailed = &Error{Code: CodeVerificationFailed, Message: "verification failed"}
)

// NewConfigurationError creates an error for configuration issues
func NewConfigurationError(message string) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: message,
	}
}

// NewConfigurationErrorf creates a configuration error with a formatted message
func NewConfigurationErrorf(format string, args ...any) *Error {
	return NewConfigurationError(fmt.Sprintf(format, args...))
}

// NewUnknownDialectError creates an error for dialect names with no adapter
func NewUnknownDialectError(dialect string) *Error {
	return &Error{
		Code:    CodeUnknownDialect,
		Message: fmt.Sprintf("unknown dialect %q", dialect),
		Details: map[string]any{"dialect": dialect},
	}
}

// NewDialectNotImplementedError creates an error for recognised but unsupported dialects
func NewDialectNotImplementedError(dialect string) *Error {
	return &Error{
		Code:    CodeDialectNotImplemented,
		Message: fmt.Sprintf("dialect %q is not implemented yet", dialect),
		Details: map[string]any{"dialect": dialect},
	}
}

// NewStateNotFoundError creates an error for undeclared states
func NewStateNotFoundError(state string) *Error {
	return &Error{
		Code:    CodeStateNotFound,
		Message: fmt.Sprintf("state %q is not declared", state),
		State:   state,
	}
}

// NewDuplicateStateError creates an error for states declared twice
func NewDuplicateStateError(state string) *Error {
	return &Error{
		Code:    CodeDuplicateState,
		Message: fmt.Sprintf("state %q is declared more than once", state),
		State:   state,
	}
}

// NewInvalidTransitionError creates an error for malformed transition declarations
func NewInvalidTransitionError(message, trigger string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: message,
		Trigger: trigger,
	}
}

// NewTransitionNotFoundError creates an error for a missing source -> dest link
func NewTransitionNotFoundError(source, dest string) *Error {
	return &Error{
		Code:    CodeTransitionNotFound,
		Message: fmt.Sprintf("no transition from %q to %q", source, dest),
		State:   source,
		Details: map[string]any{"dest": dest},
	}
}

// NewAmbiguousTransitionError creates an error for a source -> dest link matched more than once
func NewAmbiguousTransitionError(source, dest string, triggers []string) *Error {
	return &Error{
		Code:    CodeAmbiguousTransition,
		Message: fmt.Sprintf("%d transitions from %q to %q", len(triggers), source, dest),
		State:   source,
		Details: map[string]any{
			"dest":     dest,
			"triggers": strings.Join(triggers, ","),
		},
	}
}

// NewUnknownTriggerError creates an error for triggers the live machine does not expose
func NewUnknownTriggerError(trigger string) *Error {
	return &Error{
		Code:    CodeUnknownTrigger,
		Message: fmt.Sprintf("live machine does not expose trigger %q", trigger),
		Trigger: trigger,
	}
}

// NewGuardMissingError creates an error for guard names with no implementation
func NewGuardMissingError(guard string) *Error {
	return &Error{
		Code:    CodeGuardMissing,
		Message: fmt.Sprintf("guard %q has no implementation", guard),
		Details: map[string]any{"guard": guard},
	}
}

// NewGuardRejectedError creates an error for a guard that blocked a transition
func NewGuardRejectedError(state, trigger, guard string) *Error {
	return &Error{
		Code:    CodeGuardRejected,
		Message: fmt.Sprintf("guard %q rejected the transition", guard),
		State:   state,
		Trigger: trigger,
		Details: map[string]any{"guard": guard},
	}
}

// NewTransitionRejectedError creates an error for a trigger the machine refused to fire
func NewTransitionRejectedError(state, trigger string, cause error) *Error {
	return &Error{
		Code:    CodeTransitionRejected,
		Message: "live machine rejected the trigger",
		State:   state,
		Trigger: trigger,
		Cause:   cause,
	}
}

// NewUnknownSuiteError creates an error for suite names the session does not know
func NewUnknownSuiteError(name string, known []string) *Error {
	return &Error{
		Code:    CodeUnknownSuite,
		Message: fmt.Sprintf("unknown suite %q", name),
		Details: map[string]any{"known": strings.Join(known, ",")},
	}
}

// NewVerificationError creates the aggregate error of a failed session
func NewVerificationError(summaries []string) *Error {
	return &Error{
		Code:    CodeVerificationFailed,
		Message: strings.Join(summaries, "\n"),
	}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind(), true
	}
	return 0, false
}

// IsConfigurationError reports whether err aborts the session at construction
func IsConfigurationError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConfiguration
}

// IsModelError reports whether err stems from inconsistent model data
func IsModelError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindModel
}

// IsVerificationError reports whether err is an expected, per-case failure
func IsVerificationError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindVerification
}

// IsExecutionError reports whether err indicates a misconfigured harness
func IsExecutionError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindExecution
}

// IsFatal reports whether err must abort the verification session
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsVerificationError(err)
}

// ErrorCollector collects multiple errors during validation or processing
type ErrorCollector struct {
	errors []error
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]error, 0),
	}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err != nil {
		ec.errors = append(ec.errors, err)
	}
}

// HasErrors returns whether any errors were collected
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// GetErrors returns all collected errors
func (ec *ErrorCollector) GetErrors() []error {
	return ec.errors
}

// Err returns nil when nothing was collected, the single error when only
// one was, and the collector itself otherwise
func (ec *ErrorCollector) Err() error {
	switch len(ec.errors) {
	case 0:
		return nil
	case 1:
		return ec.errors[0]
	default:
		return ec
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (ec *ErrorCollector) Unwrap() []error {
	return ec.errors
}

// Error returns a string representation of all errors
func (ec *ErrorCollector) Error() string {
	if len(ec.errors) == 0 {
		return "no errors"
	}

	if len(ec.errors) == 1 {
		return ec.errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(ec.errors)))

	for i, err := range ec.errors {
		sb.WriteString(fmt.Sprintf("  %d: %v\n", i+1, err))
	}

	return sb.String()
}
