package formatter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/artpar/modelgate/core/coerce"
	"github.com/artpar/modelgate/core/schema"
	"github.com/artpar/modelgate/core/validation"
)

// ToMapping returns the instance as a plain map. Nested instances become
// maps; leaf values keep their coerced Go types.
func ToMapping(inst *validation.Instance) map[string]any {
	if inst == nil {
		return nil
	}
	return inst.AsMap()
}

// ToJSONMapping returns the instance as a map whose leaves are JSON
// compatible: datetimes as RFC 3339 strings, dates as YYYY-MM-DD, durations
// and UUIDs as strings. Feeding the result back to the engine yields an
// equal instance.
func ToJSONMapping(inst *validation.Instance) map[string]any {
	if inst == nil {
		return nil
	}
	out := make(map[string]any, inst.Len())
	values := inst.Values()
	for _, f := range inst.Schema().Fields() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = encodeValue(v, f.Type, func(n *validation.Instance) any { return ToJSONMapping(n) })
	}
	return out
}

// Ordered is like ToJSONMapping but keeps keys in field declaration order,
// including in nested instances.
func Ordered(inst *validation.Instance) *orderedmap.OrderedMap[string, any] {
	if inst == nil {
		return nil
	}
	om := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](inst.Len()))
	values := inst.Values()
	for _, f := range inst.Schema().Fields() {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		om.Set(f.Name, encodeValue(v, f.Type, func(n *validation.Instance) any { return Ordered(n) }))
	}
	return om
}

// ToText renders the instance as compact JSON with keys in declaration
// order. Equal instances always render to the same text.
func ToText(inst *validation.Instance) (string, error) {
	data, err := json.Marshal(Ordered(inst))
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", inst.Schema().Name(), err)
	}
	return string(data), nil
}

// Decode copies the instance into target, a pointer to a struct. Struct
// fields are matched by their json tag, or by name when untagged.
func Decode(inst *validation.Instance, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(ToMapping(inst)); err != nil {
		return fmt.Errorf("decode %s: %w", inst.Schema().Name(), err)
	}
	return nil
}

func encodeValue(v any, spec schema.TypeSpec, nested func(*validation.Instance) any) any {
	if v == nil {
		return nil
	}

	switch spec.Tag {
	case schema.TagPrimitive:
		if spec.Kind != schema.KindAny {
			return coerce.Encode(v, spec.Kind)
		}
	case schema.TagFixedSequence:
		if items, ok := v.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				var elem schema.TypeSpec
				if i < len(spec.Elements) {
					elem = spec.Elements[i]
				}
				out[i] = encodeValue(item, elem, nested)
			}
			return out
		}
	case schema.TagSequence:
		if items, ok := v.([]any); ok && spec.Elem != nil {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = encodeValue(item, *spec.Elem, nested)
			}
			return out
		}
	case schema.TagNested:
		if n, ok := v.(*validation.Instance); ok {
			return nested(n)
		}
	}
	return encodeDynamic(v, nested)
}

// encodeDynamic encodes values whose type is only known at runtime.
func encodeDynamic(v any, nested func(*validation.Instance) any) any {
	switch t := v.(type) {
	case *validation.Instance:
		return nested(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeDynamic(e, nested)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeDynamic(e, nested)
		}
		return out
	default:
		return coerce.Encode(v, schema.KindAny)
	}
}
