package wire

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// FromExtJSON parses relaxed or canonical MongoDB extended JSON into a
// document. Nested documents decode as bson.D and arrays as bson.A.
func FromExtJSON(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("parse extended json: %w", err)
	}
	return doc, nil
}

// ToExtJSON renders a document as relaxed extended JSON without HTML
// escaping. Key order follows the document.
func ToExtJSON(doc bson.D) ([]byte, error) {
	if doc == nil {
		doc = bson.D{}
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("render extended json: %w", err)
	}
	return data, nil
}

// FromBSON decodes a raw BSON document as stored by the persistence layer.
func FromBSON(raw []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode bson: %w", err)
	}
	return doc, nil
}

// ToBSON encodes a document to raw BSON.
func ToBSON(doc bson.D) ([]byte, error) {
	if doc == nil {
		doc = bson.D{}
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode bson: %w", err)
	}
	return raw, nil
}

func isDocument(v any) bool {
	switch v.(type) {
	case bson.D, bson.M, map[string]any, bson.Raw:
		return true
	}
	return false
}
