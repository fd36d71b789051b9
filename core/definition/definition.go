// Package definition builds schemas from declarative YAML documents.
//
// A document declares one schema:
//
//	schema: package
//	extra: forbid
//	fields:
//	  - name: dimensions
//	    type: "(int, int, int)"
//	    required: true
//	  - name: volume
//	    type: int
//	    computed: "dimensions[0] * dimensions[1] * dimensions[2]"
//	validators:
//	  - {expr: "dimensions[0] > 0", message: "dimensions must be positive"}
//
// A file may hold several documents separated by "---".
package definition

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/modelgate/core/coerce"
	"github.com/artpar/modelgate/core/expression"
	"github.com/artpar/modelgate/core/schema"
)

// Document is the YAML form of a schema.
type Document struct {
	Schema      string     `yaml:"schema"`
	Description string     `yaml:"description,omitempty"`
	Extra       string     `yaml:"extra,omitempty"`
	Fields      []FieldDef `yaml:"fields"`
	Validators  []CheckDef `yaml:"validators,omitempty"`
}

// FieldDef is the YAML form of a field.
type FieldDef struct {
	Name string `yaml:"name"`

	// Type is a type expression (see schema.ParseType), one of the legacy
	// names in typeAliases, "enum" (requires Values) or "ref" (requires To).
	Type string `yaml:"type,omitempty"`

	// To names the target schema for ref fields.
	To string `yaml:"to,omitempty"`

	Alias       string `yaml:"alias,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Required marks the field as mandatory.
	// Fields are optional by default.
	Required *bool `yaml:"required,omitempty"`

	Nullable bool `yaml:"nullable,omitempty"`

	// Default is coerced to Type once, when the document is compiled.
	Default any `yaml:"default,omitempty"`

	// DefaultFactory is one of "uuid", "now" or "today".
	DefaultFactory string `yaml:"default_factory,omitempty"`

	// Computed is an expression evaluated over the other fields.
	Computed string `yaml:"computed,omitempty"`

	// Values lists allowed values for enum fields.
	Values []string `yaml:"values,omitempty"`

	Transforms  []schema.Transform  `yaml:"transforms,omitempty"`
	Constraints []schema.Constraint `yaml:"constraints,omitempty"`
	Check       *CheckDef           `yaml:"check,omitempty"`
}

// CheckDef is an expression that must evaluate to true.
type CheckDef struct {
	Expr    string `yaml:"expr"`
	Message string `yaml:"message,omitempty"`
}

// IsRequired returns whether the field is required.
func (f FieldDef) IsRequired() bool {
	if f.Required != nil {
		return *f.Required
	}
	return false
}

// typeAliases maps shorthand type names to type expressions.
var typeAliases = map[string]string{
	"text":      "string",
	"integer":   "int",
	"number":    "float",
	"boolean":   "bool",
	"timestamp": "datetime",
	"json":      "any",
	"strings":   "[string]",
	"ints":      "[int]",
}

var factories = map[string]struct {
	kinds []schema.Kind
	fn    schema.DefaultFactory
}{
	"uuid": {
		kinds: []schema.Kind{schema.KindUUID},
		fn:    func() any { return uuid.New() },
	},
	"now": {
		kinds: []schema.Kind{schema.KindDatetime},
		fn:    func() any { return time.Now().UTC() },
	},
	"today": {
		kinds: []schema.Kind{schema.KindDate, schema.KindDatetime},
		fn: func() any {
			y, m, d := time.Now().UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		},
	},
}

// Compile converts a document into a schema. Expressions are compiled with
// compiler, or expression.Default when nil.
func Compile(doc Document, compiler *expression.Compiler) (*schema.Schema, error) {
	if compiler == nil {
		compiler = expression.Default
	}

	var errs []string
	b := schema.New(doc.Schema).Describe(doc.Description)

	switch doc.Extra {
	case "", string(schema.ExtraIgnore):
	case string(schema.ExtraForbid):
		b.Extra(schema.ExtraForbid)
	default:
		errs = append(errs, fmt.Sprintf("unknown extra policy %q", doc.Extra))
	}

	for _, def := range doc.Fields {
		f, fieldErrs := compileField(def, compiler)
		if len(fieldErrs) > 0 {
			for _, e := range fieldErrs {
				errs = append(errs, fmt.Sprintf("field %q: %s", def.Name, e))
			}
			continue
		}
		b.Add(f)
	}

	for i, check := range doc.Validators {
		fn, err := compiler.ModelCheck(check.Expr, check.Message)
		if err != nil {
			errs = append(errs, fmt.Sprintf("validator %d: %v", i, err))
			continue
		}
		b.ModelValidator(fn)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("schema %q:\n  - %s", doc.Schema, strings.Join(errs, "\n  - "))
	}

	return b.Build()
}

func compileField(def FieldDef, compiler *expression.Compiler) (schema.Field, []string) {
	var errs []string

	f := schema.Field{
		Name:        def.Name,
		Alias:       def.Alias,
		Description: def.Description,
		Required:    def.IsRequired(),
		Nullable:    def.Nullable,
	}

	spec, err := parseType(def)
	if err != nil {
		return f, []string{err.Error()}
	}
	f.Type = spec

	if def.Computed != "" {
		fn, err := compiler.Compute(def.Computed)
		if err != nil {
			return f, []string{err.Error()}
		}
		f.Compute = fn
		return f, nil
	}
	if spec.IsZero() {
		return f, []string{"type is required"}
	}

	if def.Default != nil {
		v, fes, err := coerce.Value(def.Default, spec, nil)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("default not supported for %s", spec))
		case len(fes) > 0:
			errs = append(errs, fmt.Sprintf("invalid default: %s", fes[0].Error()))
		default:
			f.Default = v
		}
	}

	if def.DefaultFactory != "" {
		factory, ok := factories[def.DefaultFactory]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("unknown default factory %q", def.DefaultFactory))
		case spec.Tag != schema.TagPrimitive || !containsKind(factory.kinds, spec.Kind):
			errs = append(errs, fmt.Sprintf("default factory %q cannot produce %s", def.DefaultFactory, spec))
		default:
			f.DefaultFactory = factory.fn
		}
	}

	for _, t := range def.Transforms {
		fn, err := t.Validator()
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		f.Validators = append(f.Validators, fn)
	}

	for _, c := range def.Constraints {
		if err := c.Check(); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		f.Validators = append(f.Validators, c.Validator())
	}

	if len(def.Values) > 0 {
		values := make([]any, len(def.Values))
		for i, v := range def.Values {
			values[i] = v
		}
		f.Validators = append(f.Validators, schema.Constraint{Type: schema.ConstraintOneOf, Value: values}.Validator())
	}

	if def.Check != nil {
		fn, err := compiler.Check(def.Check.Expr, def.Check.Message)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			f.Validators = append(f.Validators, fn)
		}
	}

	return f, errs
}

func parseType(def FieldDef) (schema.TypeSpec, error) {
	switch def.Type {
	case "":
		if def.Computed != "" {
			return schema.TypeSpec{}, nil
		}
		return schema.TypeSpec{}, fmt.Errorf("type is required")
	case "ref":
		if def.To == "" {
			return schema.TypeSpec{}, fmt.Errorf("ref type requires 'to' target")
		}
		return schema.Nested(def.To), nil
	case "enum":
		if len(def.Values) == 0 {
			return schema.TypeSpec{}, fmt.Errorf("enum type requires values")
		}
		return schema.String(), nil
	}

	if alias, ok := typeAliases[def.Type]; ok {
		return schema.ParseType(alias)
	}
	return schema.ParseType(def.Type)
}

func containsKind(kinds []schema.Kind, k schema.Kind) bool {
	for _, known := range kinds {
		if known == k {
			return true
		}
	}
	return false
}
