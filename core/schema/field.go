package schema

// ValidatorFunc checks a coerced field value. It returns the value to keep,
// which may be a transformed copy, or an error whose message is reported as
// a value_error.
type ValidatorFunc func(value any) (any, error)

// ComputeFunc derives a computed field from the validated values.
type ComputeFunc func(values Values) (any, error)

// DefaultFactory produces a default value on demand.
// Factories must be side-effect free.
type DefaultFactory func() any

// Field defines a data field in a schema.
type Field struct {
	// Name is the field name used in instances and serialized output.
	Name string

	// Type is the declared type. It may be zero only for computed fields.
	Type TypeSpec

	// Required marks the field as mandatory in the input.
	Required bool

	// Default is a static default used when the input omits the field.
	// It is trusted to already match Type.
	Default any

	// DefaultFactory produces a default when the input omits the field.
	DefaultFactory DefaultFactory

	// Alias is an alternate input key, matched case-insensitively.
	Alias string

	// Nullable accepts an explicit null as a valid value.
	Nullable bool

	// Description is carried into exported schemas.
	Description string

	// Validators run in order after coercion succeeds.
	Validators []ValidatorFunc

	// Compute derives the field after every other field validates.
	// Computed fields are never read from input.
	Compute ComputeFunc
}

// HasDefault reports whether the field has a static default or a factory.
func (f Field) HasDefault() bool {
	return f.Default != nil || f.DefaultFactory != nil
}

// IsComputed reports whether the field is derived rather than read from input.
func (f Field) IsComputed() bool {
	return f.Compute != nil
}

// DefaultValue returns the default for a missing input value.
func (f Field) DefaultValue() any {
	if f.DefaultFactory != nil {
		return f.DefaultFactory()
	}
	return CloneValue(f.Default)
}

// Expected returns the human readable expectation used in error reports.
func (f Field) Expected() string {
	if f.Type.IsZero() {
		return "computed"
	}
	return f.Type.String()
}

func (f Field) check() []string {
	var errs []string

	if !isValidIdentifier(f.Name) {
		errs = append(errs, "field name "+quote(f.Name)+" is not a valid identifier")
	}

	if f.IsComputed() {
		if f.Required {
			errs = append(errs, "field "+quote(f.Name)+": computed fields cannot be required")
		}
		if f.HasDefault() {
			errs = append(errs, "field "+quote(f.Name)+": computed fields cannot have a default")
		}
		if f.Alias != "" {
			errs = append(errs, "field "+quote(f.Name)+": computed fields cannot have an alias")
		}
		if len(f.Validators) > 0 {
			errs = append(errs, "field "+quote(f.Name)+": computed fields cannot have validators")
		}
		if !f.Type.IsZero() {
			if err := f.Type.check(); err != nil {
				errs = append(errs, "field "+quote(f.Name)+": "+err.Error())
			}
		}
		return errs
	}

	if err := f.Type.check(); err != nil {
		errs = append(errs, "field "+quote(f.Name)+": "+err.Error())
	}
	if f.Required && f.HasDefault() {
		errs = append(errs, "field "+quote(f.Name)+": required fields cannot have a default")
	}
	if f.Default != nil && f.DefaultFactory != nil {
		errs = append(errs, "field "+quote(f.Name)+": default and default factory are mutually exclusive")
	}
	return errs
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

func quote(s string) string {
	return "\"" + s + "\""
}
