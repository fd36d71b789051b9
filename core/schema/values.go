package schema

import "sort"

// Values is a read-only view of validated field values handed to model
// validators and compute functions. Each call receives its own copy.
type Values map[string]any

// Get returns the value for a field.
func (v Values) Get(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Names returns the field names present, sorted.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the view.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = CloneValue(val)
	}
	return out
}

// CloneValue deep-copies the composite values of the input universe
// (ordered sequences and string-keyed mappings). Other values are returned
// as-is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}
