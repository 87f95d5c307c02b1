package model

import "slices"

// Record is a Model whose field slots live in a map. It backs types
// declared at runtime (CUE declarations, scenario fixtures) where no Go
// struct exists.
type Record struct {
	tag    string
	meta   Meta
	values map[string]any
}

// NewRecord creates an empty record of the given type tag.
func NewRecord(tag string) *Record {
	return &Record{tag: tag, values: make(map[string]any)}
}

// Tag implements Model.
func (r *Record) Tag() string { return r.tag }

// Meta implements Model.
func (r *Record) Meta() *Meta { return &r.meta }

// Get returns the value held in a field slot.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Set assigns a field slot and marks it dirty.
func (r *Record) Set(name string, val any) {
	r.Put(name, val)
	r.meta.Mark(name)
}

// Put assigns a field slot without marking it. Used by the field table
// during inflate.
func (r *Record) Put(name string, val any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[name] = val
}

// Unset clears a field slot and marks it dirty.
func (r *Record) Unset(name string) {
	delete(r.values, name)
	r.meta.Mark(name)
}

// Names returns the names of populated slots, sorted.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.values))
	for n := range r.values {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
