package solver

import (
	"errors"
	"fmt"
)

// ErrorClass classifies solver errors for caller dispatch.
type ErrorClass string

const (
	// ClassSolveFailure indicates the kernel reported non-existence or
	// non-uniqueness of a bounded rational-expectations solution.
	// Never retried; outer callers typically convert it into a
	// rejection of the current parameter point.
	ClassSolveFailure ErrorClass = "solve_failure"

	// ClassUnsupportedConfiguration indicates a method/configuration
	// combination the solver does not support.
	ClassUnsupportedConfiguration ErrorClass = "unsupported_configuration"

	// ClassPrecondition indicates a caller configuration bug such as
	// mismatched window arithmetic or a missing collaborator.
	ClassPrecondition ErrorClass = "precondition"
)

// SolveError is a classified solver error with regime context.
type SolveError struct {
	// Class is the error classification.
	Class ErrorClass

	// Regime is the 1-based offending regime, or 0 when the error is
	// not tied to a regime.
	Regime int

	// Eigen is the kernel classification for solve failures, when
	// known.
	Eigen *Eigenstate

	// Message is the human-readable error message.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Regime > 0 {
		msg = fmt.Sprintf("[%s] regime %d: %s", e.Class, e.Regime, e.Message)
	}
	if e.Eigen != nil {
		msg = fmt.Sprintf("%s (eu=%s)", msg, e.Eigen)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *SolveError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: errors match on class.
func (e *SolveError) Is(target error) bool {
	t, ok := target.(*SolveError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewSolveFailure creates a solve failure for a regime. Pass regime 0
// for a non-regime-switching solve.
func NewSolveFailure(regime int, eigen Eigenstate) *SolveError {
	return &SolveError{
		Class:   ClassSolveFailure,
		Regime:  regime,
		Eigen:   &eigen,
		Message: "no unique bounded solution",
	}
}

// NewKernelError wraps a hard kernel error as a solve failure.
func NewKernelError(regime int, err error) *SolveError {
	return &SolveError{
		Class:   ClassSolveFailure,
		Regime:  regime,
		Message: "kernel failed",
		Err:     err,
	}
}

// NewUnsupportedConfiguration creates an unsupported-configuration
// error.
func NewUnsupportedConfiguration(format string, args ...interface{}) *SolveError {
	return &SolveError{
		Class:   ClassUnsupportedConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewPrecondition creates a precondition-violation error.
func NewPrecondition(format string, args ...interface{}) *SolveError {
	return &SolveError{
		Class:   ClassPrecondition,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsSolveFailure reports whether err is classified as a solve failure.
func IsSolveFailure(err error) bool {
	var e *SolveError
	if errors.As(err, &e) {
		return e.Class == ClassSolveFailure
	}
	return false
}

// IsUnsupportedConfiguration reports whether err is classified as an
// unsupported configuration.
func IsUnsupportedConfiguration(err error) bool {
	var e *SolveError
	if errors.As(err, &e) {
		return e.Class == ClassUnsupportedConfiguration
	}
	return false
}

// IsPrecondition reports whether err is classified as a precondition
// violation.
func IsPrecondition(err error) bool {
	var e *SolveError
	if errors.As(err, &e) {
		return e.Class == ClassPrecondition
	}
	return false
}

// FailingRegime returns the regime a solve failure is tagged with.
// ok is false when err is not a solve failure or carries no regime.
func FailingRegime(err error) (regime int, ok bool) {
	var e *SolveError
	if errors.As(err, &e) && e.Class == ClassSolveFailure && e.Regime > 0 {
		return e.Regime, true
	}
	return 0, false
}
