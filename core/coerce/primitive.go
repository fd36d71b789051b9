package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/modelgate/core/schema"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 2e10 seconds is in the year 2603.
const epochMillisThreshold = 2e10

// Epoch seconds of 0000-01-01T00:00:00Z and 9999-12-31T23:59:59Z, the range
// RFC 3339 text can represent.
const (
	minEpochSeconds = -62167219200
	maxEpochSeconds = 253402300799
)

var datetimeLayouts = []struct {
	layout string
	utc    bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02 15:04:05.999999999Z07:00", false},
	{"2006-01-02 15:04:05.999999999", true},
	{"2006-01-02", true},
}

var boolStrings = map[string]bool{
	"true": true, "t": true, "yes": true, "y": true, "on": true, "1": true,
	"false": false, "f": false, "no": false, "n": false, "off": false, "0": false,
}

// Primitive coerces input to a primitive kind. The returned error, if any,
// has an empty path.
func Primitive(input any, kind schema.Kind) (any, *schema.FieldError) {
	var (
		v  any
		ok bool
	)
	switch kind {
	case schema.KindString:
		v, ok = input.(string)
	case schema.KindInt:
		v, ok = toInt(input)
	case schema.KindFloat:
		v, ok = toFloat(input)
	case schema.KindBool:
		v, ok = toBool(input)
	case schema.KindDatetime:
		v, ok = toDatetime(input)
	case schema.KindDate:
		v, ok = toDate(input)
	case schema.KindDuration:
		v, ok = toDuration(input)
	case schema.KindUUID:
		v, ok = toUUID(input)
	case schema.KindEmail:
		v, ok = toEmail(input)
	case schema.KindURL:
		v, ok = toURL(input)
	case schema.KindAny:
		v, ok = schema.CloneValue(input), input != nil
	default:
		return nil, &schema.FieldError{
			Kind:     schema.InvalidFormat,
			Message:  fmt.Sprintf("unknown type %q", kind),
			Expected: string(kind),
			Input:    input,
		}
	}

	if !ok {
		fe := invalid(schema.Primitive(kind), input, "value is not a valid "+string(kind))
		if input == nil {
			fe.Message = "value is null"
		}
		return nil, &fe
	}
	return v, nil
}

func toInt(input any) (int64, bool) {
	switch n := input.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
		return 0, false
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func uintToInt(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(input any) (float64, bool) {
	var f float64
	switch n := input.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		v, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = v
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = v
	case bool:
		return 0, false
	default:
		i, ok := toInt(input)
		if !ok {
			if u, isUint := input.(uint64); isUint {
				return float64(u), true
			}
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toBool(input any) (bool, bool) {
	switch b := input.(type) {
	case bool:
		return b, true
	case string:
		v, ok := boolStrings[strings.ToLower(strings.TrimSpace(b))]
		return v, ok
	}
	f, ok := toFloat(input)
	if !ok {
		return false, false
	}
	switch f {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return false, false
	}
}

func toDatetime(input any) (time.Time, bool) {
	switch t := input.(type) {
	case time.Time:
		return t, true
	case string:
		return parseDatetime(strings.TrimSpace(t))
	case bool:
		return time.Time{}, false
	}
	f, ok := toFloat(input)
	if !ok {
		return time.Time{}, false
	}
	if math.Abs(f) > epochMillisThreshold {
		f /= 1000
	}
	if !(f >= minEpochSeconds && f < maxEpochSeconds+1) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	t := time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}

func parseDatetime(s string) (time.Time, bool) {
	for _, l := range datetimeLayouts {
		var (
			t   time.Time
			err error
		)
		if l.utc {
			t, err = time.ParseInLocation(l.layout, s, time.UTC)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toDate(input any) (time.Time, bool) {
	switch t := input.(type) {
	case time.Time:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case string:
		parsed, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(t), time.UTC)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func toDuration(input any) (time.Duration, bool) {
	switch d := input.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(d))
		return parsed, err == nil
	case bool:
		return 0, false
	}
	secs, ok := toFloat(input)
	if !ok {
		return 0, false
	}
	ns := secs * float64(time.Second)
	if ns < math.MinInt64 || ns >= math.MaxInt64 {
		return 0, false
	}
	return time.Duration(ns), true
}

func toUUID(input any) (uuid.UUID, bool) {
	switch u := input.(type) {
	case uuid.UUID:
		return u, true
	case string:
		parsed, err := uuid.Parse(strings.TrimSpace(u))
		return parsed, err == nil
	default:
		return uuid.Nil, false
	}
}

func toEmail(input any) (string, bool) {
	s, ok := input.(string)
	if !ok {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", false
	}
	return s, true
}

func toURL(input any) (string, bool) {
	s, ok := input.(string)
	if !ok {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return s, true
}
