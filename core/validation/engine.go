// Package validation validates untyped input mappings against registered
// schemas. A validation call either returns a fully populated *Instance or a
// *schema.ValidationError listing every failure found.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/modelgate/core/coerce"
	"github.com/artpar/modelgate/core/registry"
	"github.com/artpar/modelgate/core/schema"
)

// Observer is notified once per top-level validation call.
type Observer interface {
	ObserveValidation(schemaName string, elapsed time.Duration, errs []schema.FieldError)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver sets the validation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine validates input against schemas resolved by name.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	resolver registry.Resolver
	logger   zerolog.Logger
	observer Observer
}

// New creates an engine backed by resolver.
func New(resolver registry.Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate resolves the named schema and validates raw against it.
// Registry failures are returned as-is; validation failures as
// *schema.ValidationError.
func (e *Engine) Validate(name string, raw map[string]any) (*Instance, error) {
	s, err := e.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	return e.ValidateSchema(s, raw)
}

// ValidateSchema validates raw against s. Nested references are resolved
// through the engine's resolver.
func (e *Engine) ValidateSchema(s *schema.Schema, raw map[string]any) (*Instance, error) {
	start := time.Now()
	inst, errs, err := e.validate(s, raw)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Error().Err(err).Str("schema", s.Name()).Msg("validation aborted")
		return nil, err
	}
	if e.observer != nil {
		e.observer.ObserveValidation(s.Name(), elapsed, errs)
	}
	if len(errs) > 0 {
		e.logger.Debug().
			Str("schema", s.Name()).
			Int("errors", len(errs)).
			Strs("locations", locations(errs)).
			Dur("elapsed", elapsed).
			Msg("validation failed")
		return nil, &schema.ValidationError{Schema: s.Name(), Errors: errs}
	}
	return inst, nil
}

// ValidateNested implements coerce.Nested. raw may be a mapping or an
// *Instance of the same schema.
func (e *Engine) ValidateNested(name string, raw any) (any, []schema.FieldError, error) {
	s, err := e.resolver.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	switch v := raw.(type) {
	case *Instance:
		if v.Schema().Name() == name {
			return v, nil, nil
		}
		return nil, []schema.FieldError{{
			Kind:     schema.InvalidFormat,
			Message:  fmt.Sprintf("instance of schema %q", v.Schema().Name()),
			Expected: schema.Nested(name).String(),
			Input:    v.AsMap(),
		}}, nil
	case map[string]any:
		inst, errs, err := e.validate(s, v)
		if err != nil || len(errs) > 0 {
			return nil, errs, err
		}
		return inst, nil, nil
	default:
		return nil, []schema.FieldError{{
			Kind:     schema.InvalidFormat,
			Message:  "value is not a mapping",
			Expected: schema.Nested(name).String(),
			Input:    raw,
		}}, nil
	}
}

func (e *Engine) validate(s *schema.Schema, raw map[string]any) (*Instance, []schema.FieldError, error) {
	fields := s.Fields()
	keys := sortedKeys(raw)
	values := make(map[string]any, len(fields))
	consumed := make(map[string]bool, len(raw))
	var errs []schema.FieldError

	for _, f := range fields {
		if f.IsComputed() {
			continue
		}

		key, input, found := lookup(raw, keys, f)
		if !found {
			switch {
			case f.Required:
				errs = append(errs, schema.FieldError{
					Path:     []string{f.Name},
					Kind:     schema.MissingField,
					Message:  "field required",
					Expected: f.Expected(),
				})
			case f.HasDefault():
				values[f.Name] = f.DefaultValue()
			}
			continue
		}
		consumed[key] = true

		if input == nil && f.Nullable {
			values[f.Name] = nil
			continue
		}

		v, fes, err := coerce.Value(input, f.Type, e)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if len(fes) > 0 {
			errs = append(errs, schema.PrefixErrors(fes, f.Name)...)
			continue
		}

		v, fe := runValidators(f, input, v)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		values[f.Name] = v
	}

	if s.Extra() == schema.ExtraForbid {
		errs = append(errs, extraKeys(raw, keys, fields, consumed)...)
	}

	if len(errs) == 0 {
		for _, validate := range s.ModelValidators() {
			if err := validate(view(values)); err != nil {
				errs = append(errs, schema.FieldError{
					Kind:    schema.ModelError,
					Message: err.Error(),
				})
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs, nil
	}

	for _, f := range fields {
		if !f.IsComputed() {
			continue
		}
		v, fes, err := e.compute(f, values)
		if err != nil {
			return nil, nil, err
		}
		if len(fes) > 0 {
			errs = append(errs, fes...)
			continue
		}
		values[f.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs, nil
	}
	return &Instance{schema: s, values: values}, nil, nil
}

func (e *Engine) compute(f schema.Field, values map[string]any) (any, []schema.FieldError, error) {
	v, err := f.Compute(view(values))
	if err != nil {
		return nil, []schema.FieldError{{
			Path:    []string{f.Name},
			Kind:    schema.ValueError,
			Message: err.Error(),
		}}, nil
	}
	if f.Type.IsZero() || (v == nil && f.Nullable) {
		return schema.CloneValue(v), nil, nil
	}

	coerced, fes, err := coerce.Value(v, f.Type, e)
	if err != nil {
		return nil, nil, fmt.Errorf("computed field %q: %w", f.Name, err)
	}
	if len(fes) > 0 {
		return nil, schema.PrefixErrors(fes, f.Name), nil
	}
	return coerced, nil, nil
}

// lookup resolves the input value for a field. A declared alias is matched
// case-insensitively, preferring an exact-case key and then the
// lexicographically first match; the field name is matched exactly.
func lookup(raw map[string]any, keys []string, f schema.Field) (string, any, bool) {
	if f.Alias != "" {
		if v, ok := raw[f.Alias]; ok {
			return f.Alias, v, true
		}
		for _, k := range keys {
			if strings.EqualFold(k, f.Alias) {
				return k, raw[k], true
			}
		}
	}
	v, ok := raw[f.Name]
	return f.Name, v, ok
}

// runValidators applies the field's validator chain to the coerced value.
// Errors report the raw input the caller supplied.
func runValidators(f schema.Field, input, v any) (any, *schema.FieldError) {
	for _, validate := range f.Validators {
		out, err := validate(v)
		if err != nil {
			return nil, &schema.FieldError{
				Path:    []string{f.Name},
				Kind:    schema.ValueError,
				Message: err.Error(),
				Input:   input,
			}
		}
		v = out
	}
	return v, nil
}

// extraKeys reports input keys that neither matched a field nor name one.
// Keys naming computed fields are ignored so serialized instances validate
// again.
func extraKeys(raw map[string]any, keys []string, fields []schema.Field, consumed map[string]bool) []schema.FieldError {
	var errs []schema.FieldError
	for _, k := range keys {
		if consumed[k] || declares(fields, k) {
			continue
		}
		errs = append(errs, schema.FieldError{
			Path:    []string{k},
			Kind:    schema.ExtraField,
			Message: "extra fields not permitted",
			Input:   raw[k],
		})
	}
	return errs
}

func declares(fields []schema.Field, key string) bool {
	for _, f := range fields {
		if f.Name == key || (f.Alias != "" && strings.EqualFold(f.Alias, key)) {
			return true
		}
	}
	return false
}

// view builds the read-only values handed to model validators and compute
// functions. Nested instances appear as plain mappings.
func view(values map[string]any) schema.Values {
	out := make(schema.Values, len(values))
	for k, v := range values {
		out[k] = unwrap(v)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func locations(errs []schema.FieldError) []string {
	out := make([]string, len(errs))
	for i, fe := range errs {
		out[i] = fe.Location()
	}
	return out
}
