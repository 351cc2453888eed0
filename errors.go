package fsmtester

import "github.com/anggasct/fsmtester/pkg/utils"

// Error is the error type returned by every package of the module
type Error = utils.Error

// Sentinel errors for use with errors.Is
var (
	ErrConfiguration         = utils.ErrConfiguration
	ErrUnknownDialect        = utils.ErrUnknownDialect
	ErrDialectNotImplemented = utils.ErrDialectNotImplemented
	ErrStateNotFound         = utils.ErrStateNotFound
	ErrTransitionNotFound    = utils.ErrTransitionNotFound
	ErrAmbiguousTransition   = utils.ErrAmbiguousTransition
	ErrUnknownTrigger        = utils.ErrUnknownTrigger
	ErrGuardMissing          = utils.ErrGuardMissing
	ErrTransitionRejected    = utils.ErrTransitionRejected
	ErrUnknownSuite          = utils.ErrUnknownSuite
	ErrVerificationFailed    = utils.ErrVerificationFailed
)

// IsConfigurationError reports whether err comes from invalid settings
func IsConfigurationError(err error) bool { return utils.IsConfigurationError(err) }

// IsModelError reports whether err comes from an inconsistent definition
func IsModelError(err error) bool { return utils.IsModelError(err) }

// IsVerificationError reports whether err is a verification finding
func IsVerificationError(err error) bool { return utils.IsVerificationError(err) }

// IsExecutionError reports whether err comes from driving the live machine
func IsExecutionError(err error) bool { return utils.IsExecutionError(err) }
