package convert

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Int converts any integral numeric value to int64.
// Floats convert only when they carry no fractional part.
func Int(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return Int(float64(val))
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.Abs(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}

// Float converts any numeric value to float64.
func Float(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	}
	if n, ok := Int(v); ok {
		return float64(n), true
	}
	return 0, false
}

// As coerces a wire value into the native type V used by a typed model
// field. A nil input yields V's zero value and ok == true: null is a valid
// wire value for every scalar. Unrecognized input yields the zero value and
// ok == false.
func As[V any](v any) (V, bool) {
	var zero V
	if v == nil {
		return zero, true
	}
	if _, isNull := v.(primitive.Null); isNull {
		return zero, true
	}
	if out, ok := v.(V); ok {
		return out, true
	}

	var out any
	ok := false
	switch any(zero).(type) {
	case string:
		// no coercion into strings: a number is not a name
	case int:
		var n int64
		n, ok = Int(v)
		out = int(n)
	case int32:
		var n int64
		n, ok = Int(v)
		ok = ok && n >= math.MinInt32 && n <= math.MaxInt32
		out = int32(n)
	case int64:
		out, ok = Int(v)
	case float64:
		out, ok = Float(v)
	case float32:
		var f float64
		f, ok = Float(v)
		out = float32(f)
	case time.Time:
		out, ok = Time(v)
	case primitive.DateTime:
		out, ok = DateTime(v)
	case primitive.ObjectID:
		out, ok = ID(v)
	case bson.D:
		out, ok = Doc(v)
	case map[string]any:
		if p, isMap := Plain(v).(map[string]any); isMap {
			out, ok = p, true
		}
	case []any:
		if arr, isArr := Array(v); isArr {
			out, ok = Plain(arr), true
		}
	case []string:
		if arr, isArr := Array(v); isArr {
			strs := make([]string, 0, len(arr))
			ok = true
			for _, e := range arr {
				s, isStr := e.(string)
				if !isStr {
					ok = false
					break
				}
				strs = append(strs, s)
			}
			out = strs
		}
	}
	if !ok {
		return zero, false
	}
	return out.(V), true
}
