package mapper

import (
	"fmt"
	"log/slog"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/convert"
	"github.com/roach88/docmap/internal/crypt"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/wire"
)

// Mapper inflates and deflates instances of registered types.
// It holds no per-instance state and is safe for concurrent use.
type Mapper struct {
	reg    *schema.Registry
	gate   *crypt.Gate
	logger *slog.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithGate routes encrypted fields through g.
func WithGate(g *crypt.Gate) Option {
	return func(mp *Mapper) {
		mp.gate = g
	}
}

// WithLogger sets the logger used for conversion and demotion reports.
func WithLogger(l *slog.Logger) Option {
	return func(mp *Mapper) {
		mp.logger = l
	}
}

// New creates a mapper over a registry.
func New(reg *schema.Registry, opts ...Option) *Mapper {
	mp := &Mapper{
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(mp)
	}
	return mp
}

// Registry returns the registry the mapper resolves types against.
func (mp *Mapper) Registry() *schema.Registry { return mp.reg }

// Gate returns the encryption gate, or nil.
func (mp *Mapper) Gate() *crypt.Gate { return mp.gate }

// Inflate constructs an instance of the type registered under tag from doc.
func (mp *Mapper) Inflate(tag string, doc bson.D) (model.Model, error) {
	m, err := mp.reg.New(tag)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if err := mp.InflateInto(m, doc); err != nil {
		return nil, err
	}
	return m, nil
}

// InflateInto populates an empty instance from doc and captures the
// snapshot. Encrypted fields are held in the snapshot in plaintext.
func (mp *Mapper) InflateInto(m model.Model, doc bson.D) error {
	t, err := mp.reg.TypeOf(m)
	if err != nil {
		return fmt.Errorf("inflate: %w", err)
	}
	return mp.inflate(t, m, doc)
}

func (mp *Mapper) inflate(t *schema.Type, m model.Model, doc bson.D) error {
	meta := m.Meta()
	snap := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key == wire.IDKey {
			if id, ok := convert.ID(e.Value); ok {
				meta.SetID(id)
			} else {
				mp.logger.Warn("unrecognized identity kept in overflow", "type", t.Tag(), "value", e.Value)
				meta.SetExtra(e.Key, wire.CloneValue(e.Value))
			}
			snap = append(snap, e)
			continue
		}

		local := t.Aliases().LocalName(e.Key)
		if t.Excluded(local) {
			snap = append(snap, e)
			continue
		}
		f, ok := t.Field(local)
		if !ok || (e.Key != f.Wire && wire.Has(doc, f.Wire)) {
			meta.SetExtra(e.Key, wire.CloneValue(e.Value))
			snap = append(snap, e)
			continue
		}

		value, err := mp.gate.Decrypt(f, e.Value)
		if err != nil {
			return fmt.Errorf("inflate %s.%s: %w", t.Tag(), f.Name, err)
		}
		snap = append(snap, bson.E{Key: e.Key, Value: value})

		if err := mp.assign(t, m, f, e.Key, value); err != nil {
			return err
		}
	}

	meta.SetSnapshot(snap)
	if h, ok := m.(model.AfterInflater); ok {
		h.AfterInflate()
	}
	return nil
}

func (mp *Mapper) assign(t *schema.Type, m model.Model, f schema.Field, key string, value any) error {
	if !f.Kind.Nested() {
		if !f.Set(m, value) {
			mp.logger.Warn("value not convertible, kept in overflow",
				"type", t.Tag(), "field", f.Name, "kind", f.Kind.String(), "value_type", fmt.Sprintf("%T", value))
			m.Meta().SetExtra(f.Wire, wire.CloneValue(value))
			m.Meta().Hold(f.Name, convert.Normalize(f.Get(m)))
		}
		return nil
	}

	nt, linked := mp.reg.Nested(t, f)
	if !linked {
		mp.logger.Debug("opaque nested field kept in overflow", "type", t.Tag(), "field", f.Name, "nested", f.Nested)
		m.Meta().SetExtra(key, wire.CloneValue(value))
		return nil
	}
	if value == nil {
		f.Set(m, nil)
		return nil
	}

	switch f.Kind {
	case schema.KindOne:
		sub, ok := convert.Doc(value)
		if !ok {
			mp.demote(t, m, f, key, value)
			return nil
		}
		child, err := mp.inflateChild(nt, sub)
		if err != nil {
			return fmt.Errorf("inflate %s.%s: %w", t.Tag(), f.Name, err)
		}
		f.Set(m, child)

	case schema.KindMany:
		items, ok := convert.Array(value)
		if !ok {
			mp.demote(t, m, f, key, value)
			return nil
		}
		children := make([]model.Model, 0, len(items))
		for i, it := range items {
			sub, ok := convert.Doc(it)
			if !ok {
				mp.demote(t, m, f, key, value)
				return nil
			}
			child, err := mp.inflateChild(nt, sub)
			if err != nil {
				return fmt.Errorf("inflate %s.%s[%d]: %w", t.Tag(), f.Name, i, err)
			}
			children = append(children, child)
		}
		f.Set(m, children)
	}
	return nil
}

func (mp *Mapper) inflateChild(nt *schema.Type, doc bson.D) (model.Model, error) {
	child := nt.New()
	if err := mp.inflate(nt, child, doc); err != nil {
		return nil, err
	}
	return child, nil
}

// demote keeps a nested value of the wrong shape in the overflow bag. The
// slot is emptied so the overflow entry is what deflates under the key.
func (mp *Mapper) demote(t *schema.Type, m model.Model, f schema.Field, key string, value any) {
	f.Set(m, nil)
	mp.logger.Debug("nested value has wrong shape, kept in overflow",
		"type", t.Tag(), "field", f.Name, "kind", f.Kind.String(), "value_type", fmt.Sprintf("%T", value))
	m.Meta().SetExtra(key, wire.CloneValue(value))
}

// Deflate builds the wire document for m. With includeEncryption the
// result is storage-ready; without it encrypted fields stay in plaintext.
func (mp *Mapper) Deflate(m model.Model, includeEncryption bool) (bson.D, error) {
	t, err := mp.reg.TypeOf(m)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return mp.deflate(t, m, includeEncryption)
}

func (mp *Mapper) deflate(t *schema.Type, m model.Model, includeEncryption bool) (bson.D, error) {
	meta := m.Meta()
	doc := bson.D{}
	if id, ok := meta.ID(); ok {
		doc = append(doc, bson.E{Key: wire.IDKey, Value: id})
	}

	for _, f := range t.Fields() {
		if t.Excluded(f.Name) || mp.reg.Opaque(t, f) {
			continue
		}
		v := f.Get(m)
		raw, isHeld := held(m, f, v)
		if !isHeld && absent(v) {
			continue
		}

		var err error
		switch {
		case isHeld:
			v = wire.CloneValue(raw)
		case f.Kind == schema.KindOne:
			v, err = mp.deflateChild(v.(model.Model), includeEncryption)
		case f.Kind == schema.KindMany:
			children := v.([]model.Model)
			arr := make(bson.A, 0, len(children))
			for _, c := range children {
				sub, cerr := mp.deflateChild(c, includeEncryption)
				if cerr != nil {
					err = cerr
					break
				}
				arr = append(arr, sub)
			}
			v = arr
		default:
			v = convert.Normalize(v)
		}
		if err != nil {
			return nil, fmt.Errorf("deflate %s.%s: %w", t.Tag(), f.Name, err)
		}

		if includeEncryption {
			if v, err = mp.gate.Encrypt(f, v); err != nil {
				return nil, fmt.Errorf("deflate %s.%s: %w", t.Tag(), f.Name, err)
			}
		}
		doc = append(doc, bson.E{Key: f.Wire, Value: v})
	}

	for _, e := range meta.Extras() {
		if wire.Has(doc, e.Key) {
			continue
		}
		doc = append(doc, bson.E{Key: e.Key, Value: wire.CloneValue(e.Value)})
	}
	return doc, nil
}

func (mp *Mapper) deflateChild(c model.Model, includeEncryption bool) (bson.D, error) {
	nt, err := mp.reg.TypeOf(c)
	if err != nil {
		return nil, err
	}
	return mp.deflate(nt, c, includeEncryption)
}

// absent reports whether a getter result means "omit from the wire".
// held returns the unconverted stored value of f while the slot still holds
// what inflate left in it and the snapshot still carries that stored value.
func held(m model.Model, f schema.Field, v any) (any, bool) {
	meta := m.Meta()
	slot, ok := meta.Held(f.Name)
	if !ok || meta.IsMarked(f.Name) || !wire.Same(convert.Normalize(v), slot) {
		return nil, false
	}
	raw, ok := meta.Extra(f.Wire)
	if !ok {
		return nil, false
	}
	if stored, ok := wire.Lookup(meta.Snapshot(), f.Wire); ok &&
		!wire.Same(convert.Normalize(stored), convert.Normalize(raw)) {
		return nil, false
	}
	return raw, true
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
