package model

import (
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/wire"
)

// Model is implemented by every mapped type.
type Model interface {
	// Tag returns the stable type tag the type is registered under.
	Tag() string

	// Meta returns the instance's bookkeeping block. Must never be nil.
	Meta() *Meta
}

// AfterInflater is an optional hook called once an instance has been fully
// inflated. Types use it to assign defaults for fields the document lacked.
type AfterInflater interface {
	AfterInflate()
}

// Meta is embedded by value in every model.
// The zero value is a NEW instance: no id, no snapshot, no overflow.
type Meta struct {
	id       primitive.ObjectID
	hasID    bool
	snapshot bson.D
	extra    bson.D
	marks    map[string]struct{}
	held     map[string]any
}

// ID returns the identity id and whether one has been assigned.
func (m *Meta) ID() (primitive.ObjectID, bool) {
	return m.id, m.hasID
}

// SetID assigns the identity id. Only the mapper (on inflate) and the
// persistence layer (after a confirmed insert) call this.
func (m *Meta) SetID(id primitive.ObjectID) {
	m.id = id
	m.hasID = !id.IsZero()
}

// Snapshot returns the last confirmed wire document, or nil.
// The returned document is shared and must not be modified.
func (m *Meta) Snapshot() bson.D {
	return m.snapshot
}

// HasSnapshot reports whether a snapshot has been captured.
func (m *Meta) HasSnapshot() bool {
	return m.snapshot != nil
}

// SetSnapshot replaces the snapshot. Only called after a confirmed read or
// write, never speculatively.
func (m *Meta) SetSnapshot(doc bson.D) {
	if doc == nil {
		m.snapshot = nil
		return
	}
	m.snapshot = wire.Clone(doc)
}

// Extra returns the overflow value stored under a wire key.
func (m *Meta) Extra(key string) (any, bool) {
	return wire.Lookup(m.extra, key)
}

// SetExtra stores an overflow value under a wire key.
func (m *Meta) SetExtra(key string, val any) {
	m.extra = wire.Set(m.extra, key, val)
}

// DeleteExtra removes an overflow key. Returns false if it was absent.
func (m *Meta) DeleteExtra(key string) bool {
	if !wire.Has(m.extra, key) {
		return false
	}
	m.extra = wire.Delete(m.extra, key)
	return true
}

// Extras returns the overflow bag in insertion order.
// The returned document is shared and must not be modified.
func (m *Meta) Extras() bson.D {
	return m.extra
}

// Mark flags fields as dirty regardless of their value. Marks on a nested
// instance stay on that instance and never dirty its parent.
func (m *Meta) Mark(names ...string) {
	if m.marks == nil {
		m.marks = make(map[string]struct{}, len(names))
	}
	for _, n := range names {
		m.marks[n] = struct{}{}
	}
}

// IsMarked reports whether a field was explicitly marked.
func (m *Meta) IsMarked(name string) bool {
	_, ok := m.marks[name]
	return ok
}

// HasMarks reports whether any field is explicitly marked.
func (m *Meta) HasMarks() bool {
	return len(m.marks) > 0
}

// Marks returns the explicitly marked field names, sorted.
func (m *Meta) Marks() []string {
	names := make([]string, 0, len(m.marks))
	for n := range m.marks {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Hold records the slot value a field was left with when its stored value
// could not be converted. The stored value itself lives in the overflow bag.
func (m *Meta) Hold(name string, slot any) {
	if m.held == nil {
		m.held = make(map[string]any)
	}
	m.held[name] = slot
}

// Held returns the slot value recorded by Hold.
func (m *Meta) Held(name string) (any, bool) {
	v, ok := m.held[name]
	return v, ok
}

// ClearMarks empties the explicit dirty set. Implicit snapshot-diffing is
// unaffected.
func (m *Meta) ClearMarks() {
	m.marks = nil
}
