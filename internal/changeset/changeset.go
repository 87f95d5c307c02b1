// Package changeset derives minimal partial updates for persisted
// instances.
//
// A ChangeSet carries a set part, wire key to deflated value for every
// dirty field, and an unset part, the snapshot keys that neither the schema
// nor the overflow bag can still account for. The identity key and keys of
// excluded fields are never unset.
package changeset

import (
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/dirty"
	"github.com/roach88/docmap/internal/mapper"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// ErrNotPersisted is returned for NEW instances, which are always written
// in full.
var ErrNotPersisted = errors.New("instance is not persisted")

// ChangeSet is a partial update.
type ChangeSet struct {
	Set   bson.D
	Unset []string
}

// Empty reports whether applying the change set would be a no-op.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Set) == 0 && len(cs.Unset) == 0
}

// Update renders the change set as a {"$set": ..., "$unset": ...} update
// document. Empty parts are omitted.
func (cs *ChangeSet) Update() bson.D {
	var upd bson.D
	if len(cs.Set) > 0 {
		upd = append(upd, bson.E{Key: "$set", Value: cs.Set})
	}
	if len(cs.Unset) > 0 {
		unset := make(bson.D, len(cs.Unset))
		for i, k := range cs.Unset {
			unset[i] = bson.E{Key: k, Value: ""}
		}
		upd = append(upd, bson.E{Key: "$unset", Value: unset})
	}
	return upd
}

// SetKeys returns the wire keys of the set part.
func (cs *ChangeSet) SetKeys() []string {
	return wire.Keys(cs.Set)
}

// Apply returns a copy of doc with the change set applied.
func Apply(doc bson.D, cs *ChangeSet) bson.D {
	out := wire.Clone(doc)
	if out == nil {
		out = bson.D{}
	}
	for _, e := range cs.Set {
		out = wire.Set(out, e.Key, wire.CloneValue(e.Value))
	}
	for _, k := range cs.Unset {
		out = wire.Delete(out, k)
	}
	return out
}

// Builder computes change sets.
type Builder struct {
	mp      *mapper.Mapper
	tracker *dirty.Tracker
}

// NewBuilder creates a builder over a mapper.
func NewBuilder(mp *mapper.Mapper) *Builder {
	return &Builder{mp: mp, tracker: dirty.NewTracker(mp.Registry())}
}

// Dirty returns the dirty set of m without building a change set.
func (b *Builder) Dirty(m model.Model) (dirty.Set, error) {
	plain, err := b.mp.Deflate(m, false)
	if err != nil {
		return nil, err
	}
	return b.tracker.Dirty(m, plain)
}

// ClearMarks empties the explicit marks of m and of its nested instances.
func (b *Builder) ClearMarks(m model.Model) {
	b.tracker.Clear(m)
}

// Build computes the change set of a PERSISTED instance. With
// includeEncryption the set values are storage-ready; without it they are
// plaintext and can be applied to the snapshot.
func (b *Builder) Build(m model.Model, includeEncryption bool) (*ChangeSet, error) {
	state, err := dirty.StateOf(m)
	if err != nil {
		return nil, fmt.Errorf("build change set: %w", err)
	}
	if state == dirty.StateNew {
		return nil, fmt.Errorf("build change set: %w", ErrNotPersisted)
	}

	reg := b.mp.Registry()
	t, err := reg.TypeOf(m)
	if err != nil {
		return nil, fmt.Errorf("build change set: %w", err)
	}

	plain, err := b.mp.Deflate(m, false)
	if err != nil {
		return nil, fmt.Errorf("build change set: %w", err)
	}
	names, err := b.tracker.Dirty(m, plain)
	if err != nil {
		return nil, fmt.Errorf("build change set: %w", err)
	}

	doc := plain
	if includeEncryption {
		if doc, err = b.mp.Deflate(m, true); err != nil {
			return nil, fmt.Errorf("build change set: %w", err)
		}
	}

	cs := &ChangeSet{Set: bson.D{}, Unset: []string{}}
	for _, name := range names {
		key := wireKey(reg, t, name)
		v, _ := wire.Lookup(doc, key)
		cs.Set = append(cs.Set, bson.E{Key: key, Value: v})
	}

	meta := m.Meta()
	for _, key := range wire.Keys(meta.Snapshot()) {
		if key == wire.IDKey || t.ExcludedWire(key) {
			continue
		}
		if f, ok := t.FieldByWire(key); ok && !reg.Opaque(t, f) {
			continue
		}
		if _, ok := meta.Extra(key); ok {
			continue
		}
		cs.Unset = append(cs.Unset, key)
	}
	slices.Sort(cs.Unset)
	return cs, nil
}

// wireKey maps a dirty name back to its wire key. Schema fields report
// local names, overflow entries their own key.
func wireKey(reg *schema.Registry, t *schema.Type, name string) string {
	if f, ok := t.Field(name); ok && !reg.Opaque(t, f) {
		return f.Wire
	}
	return name
}
