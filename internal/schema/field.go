package schema

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/convert"
	"github.com/roach88/docmap/internal/model"
)

// Field is one entry in a type's field table.
//
// Get returns the slot's native value, or nil when the slot is empty and
// should be omitted from the wire. For KindOne it returns a model.Model,
// for KindMany a []model.Model.
//
// Set assigns a wire value (already converted to model.Model or
// []model.Model for nested kinds) and reports whether the value could be
// converted. Set never marks the field dirty.
type Field struct {
	Name      string
	Wire      string
	Kind      Kind
	Nested    string
	Encrypted bool

	Get func(model.Model) any
	Set func(model.Model, any) bool
}

// As returns a copy of f stored under a different wire name.
func (f Field) As(wire string) Field {
	f.Wire = wire
	return f
}

// Secret returns a copy of f routed through the encryption gate.
func (f Field) Secret() Field {
	f.Encrypted = true
	return f
}

// Of returns a copy of f nesting instances of the given type tag.
func (f Field) Of(tag string) Field {
	f.Nested = tag
	return f
}

// Value declares a scalar slot of native type V. Incoming wire values are
// coerced with convert.As; a failed coercion leaves the slot untouched.
func Value[M any, V any](name string, get func(*M) V, set func(*M, V)) Field {
	return Field{
		Name: name,
		Wire: name,
		Kind: KindScalar,
		Get: func(m model.Model) any {
			return get(any(m).(*M))
		},
		Set: func(m model.Model, raw any) bool {
			v, ok := convert.As[V](raw)
			if !ok {
				return false
			}
			set(any(m).(*M), v)
			return true
		},
	}
}

// Date declares a timestamp slot. The zero time is omitted on the wire.
func Date[M any](name string, get func(*M) time.Time, set func(*M, time.Time)) Field {
	return Field{
		Name: name,
		Wire: name,
		Kind: KindDate,
		Get: func(m model.Model) any {
			t := get(any(m).(*M))
			if t.IsZero() {
				return nil
			}
			return t
		},
		Set: func(m model.Model, raw any) bool {
			if raw == nil {
				set(any(m).(*M), time.Time{})
				return true
			}
			t, ok := convert.Time(raw)
			if !ok {
				return false
			}
			set(any(m).(*M), t)
			return true
		},
	}
}

// Ref declares an object id reference slot. The nil id is omitted.
func Ref[M any](name string, get func(*M) primitive.ObjectID, set func(*M, primitive.ObjectID)) Field {
	return Field{
		Name: name,
		Wire: name,
		Kind: KindID,
		Get: func(m model.Model) any {
			id := get(any(m).(*M))
			if id.IsZero() {
				return nil
			}
			return id
		},
		Set: func(m model.Model, raw any) bool {
			if raw == nil {
				set(any(m).(*M), primitive.NilObjectID)
				return true
			}
			id, ok := convert.ID(raw)
			if !ok {
				return false
			}
			set(any(m).(*M), id)
			return true
		},
	}
}

// One declares a single nested instance of the type registered under tag.
func One[M any, C any, PC interface {
	*C
	model.Model
}](name, tag string, get func(*M) PC, set func(*M, PC)) Field {
	return Field{
		Name:   name,
		Wire:   name,
		Kind:   KindOne,
		Nested: tag,
		Get: func(m model.Model) any {
			child := get(any(m).(*M))
			if child == nil {
				return nil
			}
			return model.Model(child)
		},
		Set: func(m model.Model, raw any) bool {
			if raw == nil {
				set(any(m).(*M), nil)
				return true
			}
			child, ok := raw.(PC)
			if !ok {
				return false
			}
			set(any(m).(*M), child)
			return true
		},
	}
}

// Many declares an ordered list of nested instances of the type registered
// under tag. The slot always reads back as a list, never a single instance.
func Many[M any, C any, PC interface {
	*C
	model.Model
}](name, tag string, get func(*M) []PC, set func(*M, []PC)) Field {
	return Field{
		Name:   name,
		Wire:   name,
		Kind:   KindMany,
		Nested: tag,
		Get: func(m model.Model) any {
			items := get(any(m).(*M))
			if items == nil {
				return nil
			}
			out := make([]model.Model, len(items))
			for i, c := range items {
				out[i] = c
			}
			return out
		},
		Set: func(m model.Model, raw any) bool {
			if raw == nil {
				set(any(m).(*M), nil)
				return true
			}
			items, ok := raw.([]model.Model)
			if !ok {
				return false
			}
			out := make([]PC, 0, len(items))
			for _, it := range items {
				c, ok := it.(PC)
				if !ok {
					return false
				}
				out = append(out, c)
			}
			set(any(m).(*M), out)
			return true
		},
	}
}

// Dynamic declares a slot on a model.Record. Scalars are stored as they
// arrive; dates and ids are converted like their typed counterparts.
func Dynamic(name string, kind Kind) Field {
	return Field{
		Name: name,
		Wire: name,
		Kind: kind,
		Get: func(m model.Model) any {
			v, _ := m.(*model.Record).Get(name)
			return v
		},
		Set: func(m model.Model, raw any) bool {
			r := m.(*model.Record)
			if raw == nil {
				r.Put(name, nil)
				return true
			}
			switch kind {
			case KindDate:
				t, ok := convert.Time(raw)
				if !ok {
					return false
				}
				raw = t
			case KindID:
				id, ok := convert.ID(raw)
				if !ok {
					return false
				}
				raw = id
			case KindOne:
				if _, ok := raw.(model.Model); !ok {
					return false
				}
			case KindMany:
				if _, ok := raw.([]model.Model); !ok {
					return false
				}
			}
			r.Put(name, raw)
			return true
		},
	}
}
