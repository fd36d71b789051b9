package schema

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a field-level validation failure.
type ErrorKind string

const (
	MissingField  ErrorKind = "missing_field"
	InvalidFormat ErrorKind = "invalid_format"
	ArityMismatch ErrorKind = "arity_mismatch"
	ValueError    ErrorKind = "value_error"
	ModelError    ErrorKind = "model_error"
	ExtraField    ErrorKind = "extra_field"
)

// FieldError represents a single validation failure.
type FieldError struct {
	// Path locates the failing value. Nested fields and sequence indexes
	// each add one segment. Model errors have an empty path.
	Path []string `json:"path"`

	Kind ErrorKind `json:"kind"`

	Message string `json:"message"`

	// Expected describes the declared type or condition.
	Expected string `json:"expected,omitempty"`

	// Input is the literal rejected value.
	Input any `json:"input,omitempty"`
}

// Location renders the path as a dotted string.
func (e FieldError) Location() string {
	if len(e.Path) == 0 {
		return "(model)"
	}
	return strings.Join(e.Path, ".")
}

func (e FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Location(), e.Message)
	if e.Expected != "" {
		msg += fmt.Sprintf(" [expected %s]", e.Expected)
	}
	if e.Kind != MissingField && e.Kind != ModelError {
		msg += fmt.Sprintf(" (input %#v)", e.Input)
	}
	return msg
}

// WithPrefix returns a copy with prefix prepended to the path.
func (e FieldError) WithPrefix(prefix ...string) FieldError {
	path := make([]string, 0, len(prefix)+len(e.Path))
	path = append(path, prefix...)
	path = append(path, e.Path...)
	e.Path = path
	return e
}

// PrefixErrors prepends prefix to every error path.
func PrefixErrors(errs []FieldError, prefix ...string) []FieldError {
	out := make([]FieldError, len(errs))
	for i, e := range errs {
		out[i] = e.WithPrefix(prefix...)
	}
	return out
}

// ValidationError holds every failure of one validation call.
type ValidationError struct {
	Schema string       `json:"schema"`
	Errors []FieldError `json:"errors"`
}

// Error returns a combined error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: 1 validation error: %s", e.Schema, e.Errors[0].Error())
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("%s: %d validation errors:\n  - %s", e.Schema, len(e.Errors), strings.Join(msgs, "\n  - "))
}

// Locations returns the location of every error, in order.
func (e *ValidationError) Locations() []string {
	out := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		out[i] = fe.Location()
	}
	return out
}

// Kinds returns the kind of every error, in order.
func (e *ValidationError) Kinds() []ErrorKind {
	out := make([]ErrorKind, len(e.Errors))
	for i, fe := range e.Errors {
		out[i] = fe.Kind
	}
	return out
}
