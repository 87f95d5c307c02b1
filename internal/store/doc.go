// Package store persists mapped instances in SQLite.
//
// It is the write side of the mapping: NEW instances are inserted as full
// storage-ready documents, PERSISTED instances are updated with the change
// set computed against their snapshot. Every write is one transaction that
// also appends a row to the journal.
//
// # Instance state
//
// An instance is mutated only after its transaction commits: the id is
// assigned, the snapshot is advanced, and explicit marks are cleared. If the
// write fails or its context is cancelled the instance keeps its previous
// id, snapshot and marks, so a retry computes the identical change set.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Journal reads are ordered by seq; document listings by id COLLATE BINARY,
// so results are identical across runs.
package store
