// Package dirty decides which fields of a persisted instance must be
// written on the next update.
//
// An instance without an identity id is NEW and always written in full;
// dirty tracking does not apply to it. An instance with an id and a
// snapshot is PERSISTED. A field of a PERSISTED instance is dirty when it
// was explicitly marked, when it is missing from the snapshot, or when its
// normalized current value differs from the normalized snapshot value.
// Only explicit marks are stored; the value diff is recomputed on every
// call.
//
// Nested instances keep their own marks, and those marks do not reach the
// parent. Only root instances are written, so a mark on a child has no
// effect on the change set. To force a nested value to be rewritten, mark
// the parent's field; a value edit inside a child is picked up by the diff.
//
// Values compare with wire.Same: integer widths, document key order and
// timestamp precision below a millisecond are representation, while a
// number retyped between integer and float or a string in another Unicode
// normalization form is a change.
package dirty

import (
	"errors"
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/convert"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// ErrInvalidState reports an instance that has an identity id but no
// snapshot.
var ErrInvalidState = errors.New("instance has an id but no snapshot")

// State is the persistence state of an instance.
type State int

const (
	StateNew State = iota
	StatePersisted
)

func (s State) String() string {
	if s == StatePersisted {
		return "persisted"
	}
	return "new"
}

// StateOf classifies an instance. A snapshot without an id (nested
// children carry one) still means NEW.
func StateOf(m model.Model) (State, error) {
	meta := m.Meta()
	if _, ok := meta.ID(); !ok {
		return StateNew, nil
	}
	if !meta.HasSnapshot() {
		return StatePersisted, ErrInvalidState
	}
	return StatePersisted, nil
}

// Set is a sorted set of dirty names: local names for schema fields, wire
// keys for overflow entries.
type Set []string

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := slices.BinarySearch(s, name)
	return ok
}

// Mark flags fields as dirty regardless of their value.
func Mark(m model.Model, names ...string) {
	m.Meta().Mark(names...)
}

// Clear empties the explicit marks of m. Marks on nested instances are
// left alone; see Tracker.Clear.
func Clear(m model.Model) {
	m.Meta().ClearMarks()
}

// Tracker computes dirty sets against a registry.
type Tracker struct {
	reg *schema.Registry
}

// NewTracker creates a tracker.
func NewTracker(reg *schema.Registry) *Tracker {
	return &Tracker{reg: reg}
}

// Dirty returns the dirty set of a PERSISTED instance. current is the
// instance's plaintext deflated document; the snapshot is compared in the
// same plaintext form. Dirty fails with ErrInvalidState for an id without a
// snapshot and returns nil for a NEW instance.
func (tr *Tracker) Dirty(m model.Model, current bson.D) (Set, error) {
	state, err := StateOf(m)
	if err != nil {
		return nil, err
	}
	if state == StateNew {
		return nil, nil
	}
	t, err := tr.reg.TypeOf(m)
	if err != nil {
		return nil, err
	}

	meta := m.Meta()
	snap := meta.Snapshot()
	var out Set

	for _, f := range t.Fields() {
		if t.Excluded(f.Name) || tr.reg.Opaque(t, f) {
			continue
		}
		if meta.IsMarked(f.Name) || changed(snap, current, f.Wire) {
			out = append(out, f.Name)
		}
	}

	for _, e := range meta.Extras() {
		if f, isField := t.FieldByWire(e.Key); isField && !tr.reg.Opaque(t, f) {
			continue
		}
		if meta.IsMarked(e.Key) || changed(snap, current, e.Key) {
			out = append(out, e.Key)
		}
	}

	slices.Sort(out)
	return slices.Compact(out), nil
}

// Clear empties the explicit marks of m and of every nested instance
// reachable through linked fields. The store calls it after each write.
func (tr *Tracker) Clear(m model.Model) {
	m.Meta().ClearMarks()
	tr.eachChild(m, tr.Clear)
}

func (tr *Tracker) eachChild(m model.Model, fn func(model.Model)) {
	t, err := tr.reg.TypeOf(m)
	if err != nil {
		return
	}
	for _, f := range t.Fields() {
		if !f.Kind.Nested() || t.Excluded(f.Name) || tr.reg.Opaque(t, f) {
			continue
		}
		switch c := f.Get(m).(type) {
		case model.Model:
			fn(c)
		case []model.Model:
			for _, item := range c {
				if item != nil {
					fn(item)
				}
			}
		}
	}
}

// changed compares one wire key between snapshot and current. A key
// missing from current compares as null; a key missing from both is
// unchanged.
func changed(snap, current bson.D, key string) bool {
	cur, curOK := wire.Lookup(current, key)
	was, wasOK := wire.Lookup(snap, key)
	if !wasOK {
		return curOK
	}
	return !wire.Same(convert.Normalize(cur), convert.Normalize(was))
}
