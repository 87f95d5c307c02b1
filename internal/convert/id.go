package convert

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidID is returned by ParseID for strings that are not 24 hex
// characters.
var ErrInvalidID = errors.New("invalid object id")

// idKeys are the keys recognized when an identifier arrives wrapped in a
// structured map, in lookup order.
var idKeys = []string{"$oid", "_id", "id"}

// ID converts v to an ObjectID. Accepted inputs are an ObjectID, a pointer
// to one, a 24-hex string, or a document/map holding a recognized id key.
// Anything else (including the nil ObjectID) yields absence.
func ID(v any) (primitive.ObjectID, bool) {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val, !val.IsZero()
	case *primitive.ObjectID:
		if val == nil {
			return primitive.NilObjectID, false
		}
		return ID(*val)
	case string:
		oid, err := primitive.ObjectIDFromHex(val)
		if err != nil {
			return primitive.NilObjectID, false
		}
		return oid, !oid.IsZero()
	case bson.D:
		for _, k := range idKeys {
			for _, e := range val {
				if e.Key == k {
					return ID(e.Value)
				}
			}
		}
	case bson.M:
		return idFromMap(val)
	case map[string]any:
		return idFromMap(val)
	}
	return primitive.NilObjectID, false
}

func idFromMap(m map[string]any) (primitive.ObjectID, bool) {
	for _, k := range idKeys {
		if inner, ok := m[k]; ok {
			return ID(inner)
		}
	}
	return primitive.NilObjectID, false
}

// ParseID strictly parses a 24-hex identifier string.
func ParseID(s string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return oid, nil
}
