package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// marshalBody encodes a storage-ready document for the body column.
func marshalBody(doc bson.D) ([]byte, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return data, nil
}

// unmarshalBody decodes a body column. Nested documents decode as bson.D,
// arrays as bson.A.
func unmarshalBody(data []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	return doc, nil
}

// marshalKeys converts a key list to JSON TEXT. nil encodes as [].
func marshalKeys(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(keys); err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalKeys parses JSON TEXT from a key list column.
func unmarshalKeys(data string) ([]string, error) {
	keys := []string{}
	if data == "" {
		return keys, nil
	}
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return keys, nil
}
