// Package mapper converts between wire documents and model instances.
//
// Inflate walks an incoming document key by key: the key is resolved to a
// local name through the type's alias table, excluded names are skipped,
// encrypted values are decrypted, nested documents are inflated into child
// instances, and scalars are assigned through the field's setter. Keys the
// schema does not declare are kept verbatim in the overflow bag, and so are
// values of opaque nested fields and nested values of the wrong shape.
// Inflate only fails on configuration errors and on decryption failures;
// malformed scalars are logged and left at their zero value.
//
// Deflate mirrors it: identity first, then schema fields in declaration
// order (nested children deflated before the parent applies encryption),
// then overflow entries that do not collide with a schema key.
package mapper
