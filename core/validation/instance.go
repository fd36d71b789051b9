package validation

import (
	"reflect"
	"time"

	"github.com/artpar/modelgate/core/schema"
)

// Instance is the immutable result of a successful validation.
// Nested schema values are stored as *Instance, including inside sequences.
type Instance struct {
	schema *schema.Schema
	values map[string]any
}

// Schema returns the schema the instance was validated against.
func (i *Instance) Schema() *schema.Schema { return i.schema }

// Get returns a copy of a field value.
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.values[name]
	if !ok {
		return nil, false
	}
	return schema.CloneValue(v), true
}

// Has reports whether the instance holds a value for name.
func (i *Instance) Has(name string) bool {
	_, ok := i.values[name]
	return ok
}

// Fields returns the names of the fields present, in declaration order.
// Optional fields missing from the input are absent.
func (i *Instance) Fields() []string {
	names := make([]string, 0, len(i.values))
	for _, f := range i.schema.Fields() {
		if _, ok := i.values[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// Len returns the number of fields present.
func (i *Instance) Len() int { return len(i.values) }

// Values returns a copy of the field values. Nested instances are kept.
func (i *Instance) Values() schema.Values {
	return schema.Values(i.values).Clone()
}

// AsMap returns the field values with nested instances converted to maps,
// recursively. Leaf values keep their coerced Go types.
func (i *Instance) AsMap() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = unwrap(v)
	}
	return out
}

// Equal reports whether two instances have the same schema and values.
// Times compare with time.Time.Equal.
func (i *Instance) Equal(other *Instance) bool {
	if i == nil || other == nil {
		return i == other
	}
	if i.schema.Name() != other.schema.Name() || len(i.values) != len(other.values) {
		return false
	}
	for k, v := range i.values {
		ov, ok := other.values[k]
		if !ok || !equalValue(v, ov) {
			return false
		}
	}
	return true
}

func unwrap(v any) any {
	switch t := v.(type) {
	case *Instance:
		return t.AsMap()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = unwrap(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = unwrap(e)
		}
		return out
	default:
		return v
	}
}

func equalValue(a, b any) bool {
	switch at := a.(type) {
	case *Instance:
		bt, ok := b.(*Instance)
		return ok && at.Equal(bt)
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !equalValue(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			bv, ok := bt[k]
			if !ok || !equalValue(v, bv) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
