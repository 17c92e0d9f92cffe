// Package errs provides structured, user-friendly errors with machine-parseable codes.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCode is a machine-parseable error identifier.
type ErrorCode string

const (
	// General
	ErrUnknown      ErrorCode = "ERR-000"
	ErrInternal     ErrorCode = "ERR-001"
	ErrConfig       ErrorCode = "ERR-002"
	ErrInvalidInput ErrorCode = "ERR-003"

	// Environment errors
	ErrNotFound           ErrorCode = "ERR-ENV-001"
	ErrProvisioningFailed ErrorCode = "ERR-ENV-002"
	ErrDeployFailed       ErrorCode = "ERR-ENV-003"
	ErrValidationFailed   ErrorCode = "ERR-ENV-004"

	// Runtime errors
	ErrRuntimeUnreachable ErrorCode = "ERR-RT-001"
	ErrRuntimeCreate      ErrorCode = "ERR-RT-002"
	ErrRuntimeRemove      ErrorCode = "ERR-RT-003"
	ErrRuntimeExec        ErrorCode = "ERR-RT-004"
	ErrRuntimeInspect     ErrorCode = "ERR-RT-005"

	// Registry errors
	ErrStoreRead  ErrorCode = "ERR-STORE-001"
	ErrStoreWrite ErrorCode = "ERR-STORE-002"
)

// EnclaveError is the standard structured error type used across all Enclave
// packages.
type EnclaveError struct {
	Code     ErrorCode // Machine-parseable error code
	Op       string    // Operation chain, e.g., "create.provision.compute"
	Resource string    // Resource identifier (environment id, container id, etc.)
	Cause    error     // Wrapped upstream error
	Advice   string    // Human-readable remediation hint

	// CleanupIncomplete is set on ErrProvisioningFailed when the best-effort
	// rollback of partially-created resources itself failed — the caller must
	// assume leaked resources exist.
	CleanupIncomplete bool

	// Checks carries the itemized validation results on ErrValidationFailed.
	Checks []CheckDetail
}

// CheckDetail mirrors one failed/passed validation check for error reporting.
type CheckDetail struct {
	Name   string
	Passed bool
	Detail string
}

func (e *EnclaveError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Op)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (%s)", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	if e.CleanupIncomplete {
		msg += " [cleanup incomplete — resources may have leaked]"
	}
	return msg
}

func (e *EnclaveError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the formatted user-facing error message with
// remediation advice.
func (e *EnclaveError) UserMessage() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Op)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource: %s)", e.Resource)
	}
	for _, c := range e.Checks {
		mark := "✓"
		if !c.Passed {
			mark = "✗"
		}
		msg += fmt.Sprintf("\n  %s %s", mark, c.Name)
		if c.Detail != "" {
			msg += " — " + c.Detail
		}
	}
	if e.Advice != "" {
		msg += fmt.Sprintf("\n  → %s", e.Advice)
	}
	return msg
}

// New creates a new EnclaveError.
func New(code ErrorCode, op string, cause error) *EnclaveError {
	return &EnclaveError{Code: code, Op: op, Cause: cause}
}

// Newf creates a new EnclaveError with a formatted message as the cause.
func Newf(code ErrorCode, op, format string, args ...any) *EnclaveError {
	return &EnclaveError{Code: code, Op: op, Cause: fmt.Errorf(format, args...)}
}

// WithResource sets the resource identifier on an EnclaveError.
func (e *EnclaveError) WithResource(id string) *EnclaveError {
	e.Resource = id
	return e
}

// WithAdvice sets the human-readable remediation hint on an EnclaveError.
func (e *EnclaveError) WithAdvice(advice string) *EnclaveError {
	e.Advice = advice
	return e
}

// WithCleanupIncomplete flags the error as having leaked partial resources.
func (e *EnclaveError) WithCleanupIncomplete() *EnclaveError {
	e.CleanupIncomplete = true
	return e
}

// WithChecks attaches itemized validation results.
func (e *EnclaveError) WithChecks(checks []CheckDetail) *EnclaveError {
	e.Checks = checks
	return e
}

// Wrap wraps an existing error as an EnclaveError at a new operation boundary.
func Wrap(err error, code ErrorCode, op string) *EnclaveError {
	if err == nil {
		return nil
	}
	return &EnclaveError{Code: code, Op: op, Cause: err}
}

// IsCode reports whether err is an EnclaveError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var ee *EnclaveError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// AsEnclave extracts the *EnclaveError from err, or returns nil.
func AsEnclave(err error) *EnclaveError {
	var ee *EnclaveError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}
