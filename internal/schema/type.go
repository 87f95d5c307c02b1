package schema

import (
	"fmt"

	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/wire"
)

// Factory constructs an empty instance of a type.
type Factory func() model.Model

// Type is the immutable field table of one mapped type.
type Type struct {
	tag        string
	collection string
	factory    Factory
	fields     []Field
	byName     map[string]int
	byWire     map[string]int
	exclude    map[string]struct{}
	aliases    *Aliases
}

// Option configures a Type at declaration.
type Option func(*Type)

// Exclude lists local names that are never read from or written to the
// wire. Excluded keys already present in stored documents are left alone
// by change sets.
func Exclude(names ...string) Option {
	return func(t *Type) {
		for _, n := range names {
			t.exclude[n] = struct{}{}
		}
	}
}

// Collection overrides the storage collection name, which defaults to the
// type tag.
func Collection(name string) Option {
	return func(t *Type) {
		t.collection = name
	}
}

// Declare builds a Type from its field table.
func Declare(tag string, factory Factory, fields []Field, opts ...Option) (*Type, error) {
	if tag == "" {
		return nil, fmt.Errorf("declare: %w: empty type tag", ErrInvalidField)
	}
	if factory == nil {
		return nil, fmt.Errorf("declare %s: nil factory", tag)
	}

	t := &Type{
		tag:        tag,
		collection: tag,
		factory:    factory,
		fields:     make([]Field, len(fields)),
		byName:     make(map[string]int, len(fields)),
		byWire:     make(map[string]int, len(fields)),
		exclude:    make(map[string]struct{}),
	}
	copy(t.fields, fields)

	for i, f := range t.fields {
		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("declare %s: %w", tag, err)
		}
		if _, dup := t.byName[f.Name]; dup {
			return nil, fmt.Errorf("declare %s: %w: %q", tag, ErrDuplicateField, f.Name)
		}
		if _, dup := t.byWire[f.Wire]; dup {
			return nil, fmt.Errorf("declare %s: %w: wire name %q", tag, ErrDuplicateField, f.Wire)
		}
		t.byName[f.Name] = i
		t.byWire[f.Wire] = i
	}

	for _, opt := range opts {
		opt(t)
	}
	t.aliases = newAliases(t.fields)
	return t, nil
}

// MustDeclare is like Declare but panics on error. For package-level type
// tables.
func MustDeclare(tag string, factory Factory, fields []Field, opts ...Option) *Type {
	t, err := Declare(tag, factory, fields, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func validateField(f Field) error {
	switch {
	case f.Name == "" || f.Wire == "":
		return fmt.Errorf("%w: empty name", ErrInvalidField)
	case f.Name == LocalIDName || f.Wire == wire.IDKey:
		return fmt.Errorf("%w: %q is reserved for the identity", ErrInvalidField, f.Name)
	case f.Get == nil || f.Set == nil:
		return fmt.Errorf("%w: %q has no accessors", ErrInvalidField, f.Name)
	case f.Kind.Nested() && f.Nested == "":
		return fmt.Errorf("%w: nested field %q has no type tag", ErrInvalidField, f.Name)
	case !f.Kind.Nested() && f.Nested != "":
		return fmt.Errorf("%w: %s field %q cannot nest %q", ErrInvalidField, f.Kind, f.Name, f.Nested)
	}
	return nil
}

// Tag returns the type tag.
func (t *Type) Tag() string { return t.tag }

// Collection returns the storage collection name.
func (t *Type) Collection() string { return t.collection }

// New constructs an empty instance.
func (t *Type) New() model.Model { return t.factory() }

// Aliases returns the type's alias table.
func (t *Type) Aliases() *Aliases { return t.aliases }

// Fields returns the field table in declaration order.
func (t *Type) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field looks up a field by local name.
func (t *Type) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// FieldByWire looks up a field by wire name.
func (t *Type) FieldByWire(wireName string) (Field, bool) {
	i, ok := t.byWire[wireName]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// Excluded reports whether a local name is excluded from the wire.
func (t *Type) Excluded(name string) bool {
	_, ok := t.exclude[name]
	return ok
}

// ExcludedWire reports whether a wire key resolves to an excluded name.
func (t *Type) ExcludedWire(wireName string) bool {
	return t.Excluded(t.aliases.LocalName(wireName))
}

// IsEncrypted reports whether the named field is declared encrypted.
func (t *Type) IsEncrypted(name string) bool {
	f, ok := t.Field(name)
	return ok && f.Encrypted
}
