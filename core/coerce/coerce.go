// Package coerce converts untyped input values into the typed values declared
// by a schema.TypeSpec.
//
// Every function in this package is pure: inputs are never mutated and the
// result of a successful coercion shares no mutable state with its input.
// Failures are returned as schema.FieldError values whose paths are relative
// to the coerced value; callers prefix them with the field location.
package coerce

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/artpar/modelgate/core/schema"
)

// Nested validates a value against a referenced schema. The validation
// engine implements it so that coercion can recurse into nested schemas
// without depending on the engine.
type Nested interface {
	// ValidateNested returns the validated nested value, or the field errors
	// relative to the nested schema. A non-nil error reports a failure that
	// is not a validation error, such as an unknown schema.
	ValidateNested(name string, raw any) (any, []schema.FieldError, error)
}

// ErrNoNestedValidator is returned when a nested type is coerced without a
// Nested implementation.
var ErrNoNestedValidator = errors.New("coerce: nested schema requires a validator")

// Value coerces input to spec. On failure it returns the collected field
// errors; the error return is reserved for hard failures from nested
// resolution.
func Value(input any, spec schema.TypeSpec, nested Nested) (any, []schema.FieldError, error) {
	if input == nil {
		return nil, []schema.FieldError{invalid(spec, input, "value is null")}, nil
	}

	switch spec.Tag {
	case schema.TagPrimitive:
		v, fe := Primitive(input, spec.Kind)
		if fe != nil {
			return nil, []schema.FieldError{*fe}, nil
		}
		return v, nil, nil

	case schema.TagFixedSequence:
		items, ok := asSequence(input)
		if !ok {
			return nil, []schema.FieldError{invalid(spec, input, "value is not a sequence")}, nil
		}
		if len(items) != len(spec.Elements) {
			return nil, []schema.FieldError{{
				Kind:     schema.ArityMismatch,
				Message:  fmt.Sprintf("expected %d items, got %d", len(spec.Elements), len(items)),
				Expected: spec.String(),
				Input:    input,
			}}, nil
		}
		return elements(items, func(i int) schema.TypeSpec { return spec.Elements[i] }, nested)

	case schema.TagSequence:
		items, ok := asSequence(input)
		if !ok {
			return nil, []schema.FieldError{invalid(spec, input, "value is not a sequence")}, nil
		}
		return elements(items, func(int) schema.TypeSpec { return *spec.Elem }, nested)

	case schema.TagNested:
		if nested == nil {
			return nil, nil, ErrNoNestedValidator
		}
		return nested.ValidateNested(spec.Schema, input)

	default:
		return nil, nil, fmt.Errorf("coerce: undeclared type")
	}
}

func elements(items []any, specAt func(int) schema.TypeSpec, nested Nested) (any, []schema.FieldError, error) {
	out := make([]any, len(items))
	var errs []schema.FieldError
	for i, item := range items {
		v, fes, err := Value(item, specAt(i), nested)
		if err != nil {
			return nil, nil, err
		}
		if len(fes) > 0 {
			errs = append(errs, schema.PrefixErrors(fes, strconv.Itoa(i))...)
			continue
		}
		out[i] = v
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}
	return out, nil, nil
}

// asSequence accepts []any and any other Go slice or array. Strings and byte
// slices are not sequences.
func asSequence(input any) ([]any, bool) {
	if items, ok := input.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(input)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	case reflect.Array:
	default:
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func invalid(spec schema.TypeSpec, input any, msg string) schema.FieldError {
	return schema.FieldError{
		Kind:     schema.InvalidFormat,
		Message:  msg,
		Expected: spec.String(),
		Input:    input,
	}
}
