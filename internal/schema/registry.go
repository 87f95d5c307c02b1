package schema

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/docmap/internal/model"
)

// Registry maps type tags to Types. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	links map[*Type]map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*Type),
		links: make(map[*Type]map[string]*Type),
	}
}

// Register adds types and resolves their nested type tags against every
// type known after the batch is added, so a batch may reference itself in
// any order. Fields whose tag does not resolve become opaque. Links are
// fixed at this point: registering a type later does not revive fields
// that were opaque before.
func (r *Registry) Register(types ...*Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(types))
	for _, t := range types {
		if _, ok := r.types[t.tag]; ok {
			return fmt.Errorf("register: %w: %q", ErrDuplicateType, t.tag)
		}
		if _, ok := seen[t.tag]; ok {
			return fmt.Errorf("register: %w: %q", ErrDuplicateType, t.tag)
		}
		seen[t.tag] = struct{}{}
	}

	for _, t := range types {
		r.types[t.tag] = t
	}
	for _, t := range types {
		links := make(map[string]*Type)
		for _, f := range t.fields {
			if !f.Kind.Nested() {
				continue
			}
			if nt, ok := r.types[f.Nested]; ok {
				links[f.Name] = nt
			}
		}
		r.links[t] = links
	}
	return nil
}

// Lookup returns the type registered under tag.
func (r *Registry) Lookup(tag string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return t, nil
}

// MustLookup is like Lookup but panics on error.
func (r *Registry) MustLookup(tag string) *Type {
	t, err := r.Lookup(tag)
	if err != nil {
		panic(err)
	}
	return t
}

// TypeOf returns the type of an instance.
func (r *Registry) TypeOf(m model.Model) (*Type, error) {
	return r.Lookup(m.Tag())
}

// New constructs an empty instance of the type registered under tag.
func (r *Registry) New(tag string) (model.Model, error) {
	t, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return t.New(), nil
}

// Nested returns the linked type of a nested field. ok is false for
// scalar fields and for opaque fields whose tag did not resolve.
func (r *Registry) Nested(t *Type, f Field) (*Type, bool) {
	if !f.Kind.Nested() {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	nt, ok := r.links[t][f.Name]
	return nt, ok
}

// Opaque reports whether a nested field's type tag did not resolve.
func (r *Registry) Opaque(t *Type, f Field) bool {
	if !f.Kind.Nested() {
		return false
	}
	_, ok := r.Nested(t, f)
	return !ok
}

// Child returns the single nested instance held in m's field, creating and
// storing an empty one on first access. A child is never written on its
// own and its marks do not reach the parent; mark the parent's field to
// force the nested value to be rewritten.
func (r *Registry) Child(m model.Model, name string) (model.Model, error) {
	t, err := r.TypeOf(m)
	if err != nil {
		return nil, err
	}
	f, ok := t.Field(name)
	if !ok || f.Kind != KindOne {
		return nil, fmt.Errorf("child %s.%s: %w: not a single nested field", t.tag, name, ErrInvalidField)
	}
	if v := f.Get(m); v != nil {
		return v.(model.Model), nil
	}
	nt, ok := r.Nested(t, f)
	if !ok {
		return nil, fmt.Errorf("child %s.%s: %w: %q", t.tag, name, ErrUnknownType, f.Nested)
	}
	child := nt.New()
	if !f.Set(m, child) {
		return nil, fmt.Errorf("child %s.%s: factory for %q built %T", t.tag, name, nt.tag, child)
	}
	return child, nil
}

// Tags returns every registered type tag, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.types))
	for tag := range r.types {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}
