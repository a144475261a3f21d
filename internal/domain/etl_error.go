package domain

import (
	"errors"
	"fmt"
)

// Phase is the pipeline stage in which an error occurred.
type Phase string

const (
	PhaseExtraction     Phase = "extraction"
	PhaseTransformation Phase = "transformation"
	PhaseLoading        Phase = "loading"
	PhaseValidation     Phase = "validation"

	// PhaseUnknown marks errors reported without a pipeline position.
	PhaseUnknown Phase = "unknown"
)

// ErrorType classifies an ETL failure.
type ErrorType string

const (
	ErrorTypeExtract        ErrorType = "EXTRACT_ERROR"
	ErrorTypeTransform      ErrorType = "TRANSFORM_ERROR"
	ErrorTypeLoad           ErrorType = "LOAD_ERROR"
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeConnection     ErrorType = "CONNECTION_ERROR"
	ErrorTypeTimeout        ErrorType = "TIMEOUT_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypePermission     ErrorType = "PERMISSION_ERROR"
	ErrorTypeUnknown        ErrorType = "UNKNOWN_ERROR"
)

// ETLError is an error tagged with its position in the error taxonomy.
type ETLError struct {
	Message string
	Type    ErrorType
	Cause   error
}

// NewETLError creates a typed ETL error.
// Parameters:
//   - errorType: taxonomy entry for the failure.
//   - message: human-readable description.
//   - cause: underlying error, may be nil.
//
// Returns:
//   - *ETLError: the typed error.
func NewETLError(errorType ErrorType, message string, cause error) *ETLError {
	return &ETLError{Message: message, Type: errorType, Cause: cause}
}

// Error implements the error interface.
func (e *ETLError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ETLError) Unwrap() error {
	return e.Cause
}

// ErrorTypeForPhase maps a phase to the error type used for untyped failures.
func ErrorTypeForPhase(phase Phase) ErrorType {
	switch phase {
	case PhaseExtraction:
		return ErrorTypeExtract
	case PhaseTransformation:
		return ErrorTypeTransform
	case PhaseLoading:
		return ErrorTypeLoad
	case PhaseValidation:
		return ErrorTypeValidation
	default:
		return ErrorTypeUnknown
	}
}

// NormalizeError returns err as an *ETLError.
// Typed errors anywhere in the chain pass through unchanged; untyped errors
// get the type implied by phase.
// Parameters:
//   - err: raw error, may be nil.
//   - phase: pipeline phase the error came from.
//
// Returns:
//   - *ETLError: the normalized error, nil when err is nil.
func NormalizeError(err error, phase Phase) *ETLError {
	if err == nil {
		return nil
	}
	var etlErr *ETLError
	if errors.As(err, &etlErr) {
		return etlErr
	}
	return NewETLError(ErrorTypeForPhase(phase), err.Error(), err)
}
