package pipeline

import (
	"errors"
	"fmt"
)

// PhaseError classifies a failure returned by an error-style phase.
//
// ErrorPhase converts a returned error into an Outcome by looking for a
// *PhaseError with errors.As. Errors that carry no PhaseError are Unknown.
type PhaseError struct {
	// Kind is the failure class. KindOK is invalid here and treated as Unknown.
	Kind    Kind
	Message string
	Detail  string
	Err     error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewAbort creates an abort-class PhaseError.
func NewAbort(msg string) *PhaseError {
	return &PhaseError{Kind: KindAbort, Message: msg}
}

// NewRecoverable creates a recoverable PhaseError wrapping cause.
func NewRecoverable(msg string, cause error) *PhaseError {
	return &PhaseError{Kind: KindRecoverable, Message: msg, Err: cause}
}

// NewFatal creates a fatal PhaseError wrapping cause.
func NewFatal(msg string, cause error) *PhaseError {
	return &PhaseError{Kind: KindFatal, Message: msg, Err: cause}
}

// KindOf returns the classification carried by err.
// A nil error is KindOK; an unclassified error is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		if pe.Kind == KindOK {
			return KindUnknown
		}
		return pe.Kind
	}
	return KindUnknown
}

// IsAbort returns true if err is classified as abort.
func IsAbort(err error) bool {
	return err != nil && KindOf(err) == KindAbort
}

// IsRecoverable returns true if err is classified as recoverable.
func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == KindRecoverable
}

// IsFatal returns true if err is classified as fatal.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}

// OutcomeFromError converts an error-style phase result into an Outcome.
func OutcomeFromError(item *WorkItem, err error) Outcome {
	if err == nil {
		return Ok(item)
	}
	out := Outcome{Kind: KindOf(err), Message: err.Error()}
	var pe *PhaseError
	if errors.As(err, &pe) {
		out.Message = pe.Message
		out.Detail = pe.Detail
		if pe.Err != nil && out.Detail == "" {
			out.Detail = pe.Err.Error()
		}
	}
	return out
}
