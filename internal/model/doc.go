// Package model defines the object-graph side of the mapping: the Model
// interface every mapped type implements, the Meta bookkeeping block each
// instance carries, and Record, a map-backed model for types declared at
// runtime.
//
// Meta holds exactly four things:
//   - the identity id, absent until the first confirmed insert
//   - the snapshot, the wire document last confirmed by a read or write
//   - the overflow bag, wire keys the schema does not declare
//   - the explicit dirty marks set by mutators
//
// Field slots are NOT held here; they live on the concrete type and are
// reached through the schema field table. model imports nothing internal
// except wire.
package model
