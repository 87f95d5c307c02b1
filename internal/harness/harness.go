package harness

import (
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/changeset"
	"github.com/roach88/docmap/internal/convert"
	"github.com/roach88/docmap/internal/decl"
	"github.com/roach88/docmap/internal/dirty"
	"github.com/roach88/docmap/internal/mapper"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// Harness holds the per-scenario mapping context.
type Harness struct {
	reg     *schema.Registry
	mp      *mapper.Mapper
	builder *changeset.Builder
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh registry built from its own declarations.
//
// Execution flow:
// 1. Compile the declared types
// 2. Inflate the snapshot into an instance of the scenario type
// 3. Apply mutations
// 4. Build the change set and deflate the instance
// 5. Compare against the expectation
func Run(s *Scenario) (*Result, error) {
	types, err := loadTypes(s)
	if err != nil {
		return nil, fmt.Errorf("failed to load types: %w", err)
	}

	reg := schema.NewRegistry()
	if err := reg.Register(types...); err != nil {
		return nil, fmt.Errorf("failed to register types: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	mp := mapper.New(reg, mapper.WithLogger(logger))
	h := &Harness{
		reg:     reg,
		mp:      mp,
		builder: changeset.NewBuilder(mp),
		logger:  logger,
	}

	snapshot, err := wire.FromExtJSON([]byte(s.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if !wire.Has(snapshot, wire.IDKey) {
		return nil, fmt.Errorf("snapshot has no %s", wire.IDKey)
	}

	inst, err := mp.Inflate(s.Type, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate snapshot: %w", err)
	}

	for i, m := range s.Mutations {
		if err := h.apply(inst, m); err != nil {
			return nil, fmt.Errorf("mutation %d (%s): %w", i, m.Op, err)
		}
	}

	result := NewResult()
	names, err := h.builder.Dirty(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to compute dirty set: %w", err)
	}
	result.Dirty = append(result.Dirty, names...)

	if result.ChangeSet, err = h.builder.Build(inst, false); err != nil {
		return nil, fmt.Errorf("failed to build change set: %w", err)
	}
	if result.Document, err = mp.Deflate(inst, false); err != nil {
		return nil, fmt.Errorf("failed to deflate: %w", err)
	}

	for _, msg := range Evaluate(result, &s.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

func loadTypes(s *Scenario) ([]*schema.Type, error) {
	if s.SchemaDir != "" {
		return decl.LoadDir(s.SchemaDir)
	}
	return decl.CompileString(s.Schema, s.Name+".cue")
}

// apply performs one mutation on inst.
func (h *Harness) apply(inst model.Model, m Mutation) error {
	meta := inst.Meta()
	switch m.Op {
	case OpExtra:
		v, err := m.resolve()
		if err != nil {
			return err
		}
		meta.SetExtra(m.Key, convert.Normalize(v))
		return nil
	case OpDropExtra:
		if !meta.DeleteExtra(m.Key) {
			return fmt.Errorf("no overflow key %q", m.Key)
		}
		return nil
	}

	t, err := h.reg.TypeOf(inst)
	if err != nil {
		return err
	}
	f, ok := t.Field(m.Field)
	if !ok {
		return fmt.Errorf("%w: %s.%s", schema.ErrInvalidField, t.Tag(), m.Field)
	}

	switch m.Op {
	case OpMark:
		dirty.Mark(inst, f.Name)
	case OpDelete:
		f.Set(inst, nil)
		dirty.Mark(inst, f.Name)
	case OpSet:
		v, err := m.resolve()
		if err != nil {
			return err
		}
		raw, err := h.slotValue(t, f, v)
		if err != nil {
			return err
		}
		if !f.Set(inst, raw) {
			return fmt.Errorf("value %v not assignable to %s.%s", v, t.Tag(), f.Name)
		}
		dirty.Mark(inst, f.Name)
	}

	h.logger.Debug("mutation applied", "op", m.Op, "field", m.Field)
	return nil
}

// slotValue converts a scenario value into what the field setter takes.
// Nested values are inflated into child instances.
func (h *Harness) slotValue(t *schema.Type, f schema.Field, v any) (any, error) {
	if !f.Kind.Nested() || v == nil {
		return v, nil
	}
	nt, ok := h.reg.Nested(t, f)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s nests %q", schema.ErrUnknownType, t.Tag(), f.Name, f.Nested)
	}

	if f.Kind == schema.KindOne {
		doc, ok := convert.Doc(v)
		if !ok {
			return nil, fmt.Errorf("%s.%s takes a document, got %T", t.Tag(), f.Name, v)
		}
		return h.mp.Inflate(nt.Tag(), doc)
	}

	arr, ok := convert.Array(v)
	if !ok {
		return nil, fmt.Errorf("%s.%s takes a list, got %T", t.Tag(), f.Name, v)
	}
	children := make([]model.Model, 0, len(arr))
	for i, e := range arr {
		doc, ok := convert.Doc(e)
		if !ok {
			return nil, fmt.Errorf("%s.%s[%d] takes a document, got %T", t.Tag(), f.Name, i, e)
		}
		c, err := h.mp.Inflate(nt.Tag(), doc)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}

// resolve returns the mutation value, decoding JSON when present.
func (m Mutation) resolve() (any, error) {
	if m.JSON == "" {
		return m.Value, nil
	}
	doc, err := wire.FromExtJSON([]byte(`{"v":` + m.JSON + `}`))
	if err != nil {
		return nil, fmt.Errorf("failed to parse json value: %w", err)
	}
	v, _ := wire.Lookup(doc, "v")
	return v, nil
}

// expectedSet parses the expected $set document.
func expectedSet(e *Expectation) (bson.D, error) {
	if e.Set == "" {
		return bson.D{}, nil
	}
	return wire.FromExtJSON([]byte(e.Set))
}
