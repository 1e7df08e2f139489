package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error. The wire code of each kind is recorded in
// outcome artifact metadata and error descriptors.
type Kind int

const (
	// KindConfiguration marks a missing required deployment parameter.
	// Fatal: callers abort immediately, nothing is degraded around it.
	KindConfiguration Kind = iota + 1

	// KindValidation marks malformed input: a bad prompt configuration, an
	// unsupported file format, or a nested directory. Causes a per-file skip
	// or a per-directory terminal error, never a crash.
	KindValidation

	// KindCapability marks an inference-call failure. Recorded per file and
	// never retried by this pipeline.
	KindCapability

	// KindResponseSchema marks a structurally invalid model response
	// (unparseable, or missing required fields). Treated like KindCapability.
	KindResponseSchema

	// KindStoreAccess marks an object-store read or write failure. Handled by
	// degraded continuation wherever possible.
	KindStoreAccess
)

// Code returns the wire code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindValidation:
		return "validation_error"
	case KindCapability:
		return "capability_error"
	case KindResponseSchema:
		return "response_schema_error"
	case KindStoreAccess:
		return "store_access_error"
	default:
		return "unknown_error"
	}
}

// Error is a classified pipeline error. Use errors.As to recover the kind
// from a wrapped chain.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the wire code for the error's kind.
func (e *Error) Code() string { return e.kind.Code() }

// NewValidationError creates a KindValidation error.
func NewValidationError(msg string) *Error {
	return &Error{kind: KindValidation, msg: msg}
}

// NewConfigurationError creates a KindConfiguration error.
func NewConfigurationError(msg string) *Error {
	return &Error{kind: KindConfiguration, msg: msg}
}

// NewCapabilityError wraps an inference-call failure.
func NewCapabilityError(msg string, err error) *Error {
	return &Error{kind: KindCapability, msg: msg, err: err}
}

// NewResponseSchemaError wraps a structurally invalid model response.
func NewResponseSchemaError(msg string, err error) *Error {
	return &Error{kind: KindResponseSchema, msg: msg, err: err}
}

// NewStoreAccessError wraps an object-store failure.
func NewStoreAccessError(msg string, err error) *Error {
	return &Error{kind: KindStoreAccess, msg: msg, err: err}
}

// CodeOf returns the wire code for err, walking the wrap chain. Errors that
// carry no classification default to capability_error: at the processor
// boundary an unclassified failure is an inference-call failure.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code()
	}
	return KindCapability.Code()
}
