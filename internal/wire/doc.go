// Package wire provides the schema-less document representation exchanged
// with the database.
//
// A wire document is a bson.D. Nested documents may appear as bson.D,
// bson.M or map[string]any and arrays as bson.A or []any, depending on
// which driver or decoder produced them. This package never assumes one
// shape; callers that need a plain form go through internal/convert.
//
// Key design constraints:
//   - The identity key is the single reserved top-level token "_id"
//   - Field order is preserved but never significant for equality
//   - Canonical encoding (RFC 8785 key order, NFC strings) is the ONLY
//     serialization used for equality and hashing
//
// wire imports nothing internal.
package wire
