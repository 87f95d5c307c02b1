package wire

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// IDKey is the reserved wire token for the identity field.
const IDKey = "_id"

// Lookup returns the value stored under key and whether it exists.
// If a document carries duplicate keys, the last one wins, matching
// server-side semantics.
func Lookup(doc bson.D, key string) (any, bool) {
	var (
		val   any
		found bool
	)
	for _, e := range doc {
		if e.Key == key {
			val, found = e.Value, true
		}
	}
	return val, found
}

// Has reports whether key is present in doc.
func Has(doc bson.D, key string) bool {
	_, ok := Lookup(doc, key)
	return ok
}

// Set replaces the value under key in place, or appends it when absent.
// Returns the (possibly grown) document.
func Set(doc bson.D, key string, val any) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = val
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: val})
}

// Delete removes every element with the given key.
func Delete(doc bson.D, key string) bson.D {
	out := doc[:0]
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// Keys returns the document keys in document order, without duplicates.
func Keys(doc bson.D) []string {
	seen := make(map[string]struct{}, len(doc))
	keys := make([]string, 0, len(doc))
	for _, e := range doc {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		keys = append(keys, e.Key)
	}
	return keys
}

// Clone returns a copy of doc. Nested containers are copied by CloneValue;
// scalar values are shared.
func Clone(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: CloneValue(e.Value)}
	}
	return out
}

// CloneValue deep-copies document and array containers; scalars are
// returned as is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		return Clone(val)
	case bson.M:
		out := make(bson.M, len(val))
		for k, e := range val {
			out[k] = CloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = CloneValue(e)
		}
		return out
	case bson.A:
		out := make(bson.A, len(val))
		for i, e := range val {
			out[i] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// FromMap converts a map into a document with keys in sorted order so the
// result is deterministic.
func FromMap(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}
