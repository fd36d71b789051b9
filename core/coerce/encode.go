package coerce

import (
	"time"

	"github.com/google/uuid"

	"github.com/artpar/modelgate/core/schema"
)

// DateLayout is the wire form of the date kind.
const DateLayout = "2006-01-02"

// Encode converts a coerced primitive value into its JSON-compatible form.
// Values of kind any are encoded recursively by their dynamic type.
func Encode(v any, kind schema.Kind) any {
	switch kind {
	case schema.KindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(DateLayout)
		}
	case schema.KindAny:
		return encodeDynamic(v)
	}
	return encodeScalar(v)
}

func encodeScalar(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case uuid.UUID:
		return t.String()
	default:
		return v
	}
}

func encodeDynamic(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeDynamic(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeDynamic(e)
		}
		return out
	default:
		return encodeScalar(v)
	}
}
