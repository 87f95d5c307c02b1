package convert

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/wire"
)

// Doc returns v as an ordered document if it is any document-shaped
// container. Maps are ordered by key so the result is deterministic.
func Doc(v any) (bson.D, bool) {
	switch val := v.(type) {
	case bson.D:
		return val, true
	case bson.M:
		return wire.FromMap(val), true
	case map[string]any:
		return wire.FromMap(val), true
	case bson.Raw:
		doc, err := wire.FromBSON(val)
		if err != nil {
			return nil, false
		}
		return doc, true
	}
	return nil, false
}

// Array returns v as a slice if it is any array-shaped container.
func Array(v any) ([]any, bool) {
	switch val := v.(type) {
	case bson.A:
		return []any(val), true
	case []any:
		return val, true
	case []bson.D:
		out := make([]any, len(val))
		for i, d := range val {
			out[i] = d
		}
		return out, true
	case []bson.M:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// Plain rewrites wire-specific document and array wrappers into
// map[string]any and []any, recursively. Values that are already plain are
// returned untouched without allocating.
func Plain(v any) any {
	if isPlain(v) {
		return v
	}
	switch val := v.(type) {
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Plain(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Plain(e)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Plain(e)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Null, primitive.Undefined:
		return nil
	}
	return v
}

func isPlain(v any) bool {
	switch val := v.(type) {
	case bson.D, bson.M, bson.A, primitive.DateTime, primitive.Null, primitive.Undefined:
		return false
	case map[string]any:
		for _, e := range val {
			if !isPlain(e) {
				return false
			}
		}
	case []any:
		for _, e := range val {
			if !isPlain(e) {
				return false
			}
		}
	}
	return true
}

// Normalize is the persistence normalization pass. It is applied to every
// value before it is written and before it is compared against a snapshot,
// so representation-only differences never register as changes:
//   - time.Time becomes a millisecond primitive.DateTime
//   - every document container becomes bson.D, every array bson.A
//   - bson null markers become nil
//   - *ObjectID and *time.Time are dereferenced
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case time.Time:
		return primitive.NewDateTimeFromTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return primitive.NewDateTimeFromTime(*val)
	case *primitive.ObjectID:
		if val == nil {
			return nil
		}
		return *val
	case bson.D:
		out := make(bson.D, len(val))
		for i, e := range val {
			out[i] = bson.E{Key: e.Key, Value: Normalize(e.Value)}
		}
		return out
	case bson.M, map[string]any:
		doc, _ := Doc(val)
		return Normalize(doc)
	}
	if arr, ok := Array(v); ok {
		out := make(bson.A, len(arr))
		for i, e := range arr {
			out[i] = Normalize(e)
		}
		return out
	}
	return v
}
