package schema

import (
	"fmt"
	"strings"
)

// ModelValidatorFunc checks the fully validated values of a schema as a whole.
type ModelValidatorFunc func(values Values) error

// ExtraPolicy decides what happens to input keys the schema does not declare.
type ExtraPolicy string

const (
	// ExtraIgnore drops unknown keys silently.
	ExtraIgnore ExtraPolicy = "ignore"

	// ExtraForbid reports every unknown key as an extra_field error.
	ExtraForbid ExtraPolicy = "forbid"
)

// Schema is the declaration of a data shape. It is immutable once built.
type Schema struct {
	name        string
	description string
	fields      []Field
	index       map[string]int
	validators  []ModelValidatorFunc
	extra       ExtraPolicy
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Description returns the schema description.
func (s *Schema) Description() string { return s.description }

// Extra returns the unknown-key policy.
func (s *Schema) Extra() ExtraPolicy { return s.extra }

// Fields returns the field descriptors in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.clone()
	}
	return out
}

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the descriptor for a field name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i].clone(), true
}

// ModelValidators returns the model-level validators in declaration order.
func (s *Schema) ModelValidators() []ModelValidatorFunc {
	return append([]ModelValidatorFunc(nil), s.validators...)
}

// References returns the names of schemas referenced by any field,
// deduplicated, in order of first appearance.
func (s *Schema) References() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, f := range s.fields {
		for _, ref := range f.Type.References() {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// Builder assembles a Schema.
type Builder struct {
	name        string
	description string
	fields      []Field
	validators  []ModelValidatorFunc
	extra       ExtraPolicy
}

// New starts a schema definition.
func New(name string) *Builder {
	return &Builder{name: name, extra: ExtraIgnore}
}

// FieldOption configures a field added with Builder.Field.
type FieldOption func(*Field)

// Required marks the field as mandatory.
func Required() FieldOption {
	return func(f *Field) { f.Required = true }
}

// Default sets a static default value.
func Default(v any) FieldOption {
	return func(f *Field) { f.Default = v }
}

// DefaultFunc sets a default factory.
func DefaultFunc(fn DefaultFactory) FieldOption {
	return func(f *Field) { f.DefaultFactory = fn }
}

// Alias sets an alternate input key.
func Alias(alias string) FieldOption {
	return func(f *Field) { f.Alias = alias }
}

// Nullable accepts explicit null values.
func Nullable() FieldOption {
	return func(f *Field) { f.Nullable = true }
}

// Describe sets the field description.
func Describe(description string) FieldOption {
	return func(f *Field) { f.Description = description }
}

// Validate appends validators to the field.
func Validate(fns ...ValidatorFunc) FieldOption {
	return func(f *Field) { f.Validators = append(f.Validators, fns...) }
}

// Constraints appends constraint validators to the field.
func Constraints(cs ...Constraint) FieldOption {
	return func(f *Field) {
		for _, c := range cs {
			f.Validators = append(f.Validators, c.Validator())
		}
	}
}

// Describe sets the schema description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// Field appends an input field.
func (b *Builder) Field(name string, spec TypeSpec, opts ...FieldOption) *Builder {
	f := Field{Name: name, Type: spec}
	for _, opt := range opts {
		opt(&f)
	}
	b.fields = append(b.fields, f)
	return b
}

// Computed appends a computed field. spec may be the zero TypeSpec when the
// result type is not declared.
func (b *Builder) Computed(name string, spec TypeSpec, fn ComputeFunc) *Builder {
	b.fields = append(b.fields, Field{Name: name, Type: spec, Compute: fn})
	return b
}

// Add appends a fully described field.
func (b *Builder) Add(f Field) *Builder {
	b.fields = append(b.fields, f)
	return b
}

// ModelValidator appends a model-level validator.
func (b *Builder) ModelValidator(fn ModelValidatorFunc) *Builder {
	b.validators = append(b.validators, fn)
	return b
}

// Extra sets the unknown-key policy.
func (b *Builder) Extra(p ExtraPolicy) *Builder {
	b.extra = p
	return b
}

// Build validates the definition and returns the immutable schema.
func (b *Builder) Build() (*Schema, error) {
	var errs []string

	if !isValidIdentifier(b.name) {
		errs = append(errs, fmt.Sprintf("schema name %q is not a valid identifier", b.name))
	}
	if len(b.fields) == 0 {
		errs = append(errs, "schema must have at least one field")
	}
	if b.extra != ExtraIgnore && b.extra != ExtraForbid {
		errs = append(errs, fmt.Sprintf("unknown extra policy %q", b.extra))
	}

	index := make(map[string]int, len(b.fields))
	aliases := make(map[string]string)
	for i, f := range b.fields {
		errs = append(errs, f.check()...)

		if _, dup := index[f.Name]; dup {
			errs = append(errs, fmt.Sprintf("field %q declared twice", f.Name))
			continue
		}
		index[f.Name] = i

		if f.Alias != "" {
			key := strings.ToLower(f.Alias)
			if other, dup := aliases[key]; dup {
				errs = append(errs, fmt.Sprintf("alias %q of field %q collides with field %q", f.Alias, f.Name, other))
			}
			aliases[key] = f.Name
		}
	}

	for _, f := range b.fields {
		if f.Alias == "" {
			continue
		}
		for _, other := range b.fields {
			if other.Name != f.Name && strings.EqualFold(other.Name, f.Alias) {
				errs = append(errs, fmt.Sprintf("alias %q of field %q collides with field %q", f.Alias, f.Name, other.Name))
			}
		}
	}

	for i, fn := range b.validators {
		if fn == nil {
			errs = append(errs, fmt.Sprintf("model validator %d is nil", i))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid schema %q:\n  - %s", b.name, strings.Join(errs, "\n  - "))
	}

	fields := make([]Field, len(b.fields))
	for i, f := range b.fields {
		fields[i] = f.clone()
	}

	return &Schema{
		name:        b.name,
		description: b.description,
		fields:      fields,
		index:       index,
		validators:  append([]ModelValidatorFunc(nil), b.validators...),
		extra:       b.extra,
	}, nil
}

// MustBuild is like Build but panics on an invalid definition.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func (f Field) clone() Field {
	f.Validators = append([]ValidatorFunc(nil), f.Validators...)
	f.Type = cloneSpec(f.Type)
	return f
}

func cloneSpec(t TypeSpec) TypeSpec {
	out := t
	if t.Elements != nil {
		out.Elements = make([]TypeSpec, len(t.Elements))
		for i, e := range t.Elements {
			out.Elements[i] = cloneSpec(e)
		}
	}
	if t.Elem != nil {
		elem := cloneSpec(*t.Elem)
		out.Elem = &elem
	}
	return out
}
