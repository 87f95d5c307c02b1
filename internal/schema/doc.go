// Package schema declares how mapped types look on the wire.
//
// A Type is an immutable field table: one Field per declared slot, each
// carrying its local name, wire name, kind, nested type tag and encrypted
// flag, plus a getter and setter closure. All field access by the mapper
// goes through this table; keys with no entry land in the instance's
// overflow bag.
//
// A Registry binds type tags to Types and is passed explicitly to the
// components that need it. Nested type tags are resolved once, when the
// parent type is registered. A tag that cannot be resolved turns the
// field opaque: its raw wire value is carried through the overflow bag
// instead of failing the inflate.
package schema
