package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Constraint is a declarative validation rule for a field. It is the YAML
// form of a ValidatorFunc.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length, pattern, etc.)
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number, regex pattern, etc.)
	Value any `yaml:"value" json:"value"`

	// Message replaces the generated error message.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	// Numeric constraints
	ConstraintMin ConstraintType = "min"
	ConstraintMax ConstraintType = "max"

	// Length constraints apply to strings (in runes) and sequences
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"

	ConstraintNotEmpty ConstraintType = "not_empty"
	ConstraintOneOf    ConstraintType = "one_of"
)

// Check reports whether the constraint parameters are usable.
func (c Constraint) Check() error {
	switch c.Type {
	case ConstraintMin, ConstraintMax:
		if _, ok := toFloat64(c.Value); !ok {
			return fmt.Errorf("%s: value must be a number, got %T", c.Type, c.Value)
		}
	case ConstraintMinLength, ConstraintMaxLength:
		n, ok := toInt(c.Value)
		if !ok || n < 0 {
			return fmt.Errorf("%s: value must be a non-negative integer, got %v", c.Type, c.Value)
		}
	case ConstraintPattern:
		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("pattern: value must be a string, got %T", c.Value)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	case ConstraintNotEmpty:
	case ConstraintOneOf:
		if _, ok := oneOfValues(c.Value); !ok {
			return fmt.Errorf("one_of: value must be a list, got %T", c.Value)
		}
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
	return nil
}

// Validator converts the constraint into a ValidatorFunc. Constraints with
// unusable parameters yield a validator that always fails; call Check to
// detect them up front.
func (c Constraint) Validator() ValidatorFunc {
	if err := c.Check(); err != nil {
		return func(any) (any, error) { return nil, err }
	}

	switch c.Type {
	case ConstraintMin:
		min, _ := toFloat64(c.Value)
		return func(v any) (any, error) {
			if n, ok := toFloat64(v); ok && n < min {
				return nil, c.fail("must be at least %v", c.Value)
			}
			return v, nil
		}
	case ConstraintMax:
		max, _ := toFloat64(c.Value)
		return func(v any) (any, error) {
			if n, ok := toFloat64(v); ok && n > max {
				return nil, c.fail("must be at most %v", c.Value)
			}
			return v, nil
		}
	case ConstraintMinLength:
		minLen, _ := toInt(c.Value)
		return func(v any) (any, error) {
			if n, ok := length(v); ok && n < minLen {
				return nil, c.fail("must have at least %d %s", minLen, unit(v))
			}
			return v, nil
		}
	case ConstraintMaxLength:
		maxLen, _ := toInt(c.Value)
		return func(v any) (any, error) {
			if n, ok := length(v); ok && n > maxLen {
				return nil, c.fail("must have at most %d %s", maxLen, unit(v))
			}
			return v, nil
		}
	case ConstraintPattern:
		re := regexp.MustCompile(c.Value.(string))
		return func(v any) (any, error) {
			if s, ok := v.(string); ok && !re.MatchString(s) {
				return nil, c.fail("does not match pattern %s", re.String())
			}
			return v, nil
		}
	case ConstraintNotEmpty:
		return func(v any) (any, error) {
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				return nil, c.fail("must not be empty")
			}
			if n, ok := length(v); ok && n == 0 {
				if _, isString := v.(string); !isString {
					return nil, c.fail("must not be empty")
				}
			}
			return v, nil
		}
	default: // one_of
		allowed, _ := oneOfValues(c.Value)
		options := make([]string, len(allowed))
		for i, a := range allowed {
			options[i] = fmt.Sprintf("%v", a)
		}
		return func(v any) (any, error) {
			s := fmt.Sprintf("%v", v)
			for _, o := range options {
				if o == s {
					return v, nil
				}
			}
			return nil, c.fail("must be one of: %s", strings.Join(options, ", "))
		}
	}
}

func (c Constraint) fail(format string, args ...any) error {
	if c.Message != "" {
		return errors.New(c.Message)
	}
	return fmt.Errorf(format, args...)
}

// Transform is a named value rewrite applied before constraints run.
type Transform string

const (
	TransformStrip Transform = "strip"
	TransformLower Transform = "lower"
	TransformUpper Transform = "upper"
)

// Validator converts the transform into a ValidatorFunc. Non-string values
// pass through unchanged.
func (t Transform) Validator() (ValidatorFunc, error) {
	var fn func(string) string
	switch t {
	case TransformStrip:
		fn = strings.TrimSpace
	case TransformLower:
		fn = strings.ToLower
	case TransformUpper:
		fn = strings.ToUpper
	default:
		return nil, fmt.Errorf("unknown transform %q", t)
	}
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			return fn(s), nil
		}
		return v, nil
	}, nil
}

func oneOfValues(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func length(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t), true
	case []any:
		return len(t), true
	default:
		return 0, false
	}
}

func unit(v any) string {
	if _, ok := v.(string); ok {
		return "characters"
	}
	return "items"
}

// toFloat64 converts the numeric types found in coerced values and YAML
// documents to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
