// Package decl loads type declarations written in CUE.
//
// A declaration file holds a top-level "type" struct keyed by type tag:
//
//	type: user: {
//		collection: "users"
//		exclude: ["password"]
//		fields: {
//			name:    {kind: "scalar", wire: "n"}
//			email:   {kind: "scalar", encrypted: true}
//			address: {kind: "one", nested: "address"}
//		}
//	}
//
// Declarations are validated against an embedded CUE definition before
// they are compiled. Every declared type is backed by model.Record; field
// order on the wire follows declaration order.
package decl

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
)

//go:embed decl.cue
var declCUE string

// Error is a declaration error with its CUE source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CompileString compiles declarations from CUE source text.
func CompileString(src, filename string) ([]*schema.Type, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadDir compiles every .cue file in dir as one CUE instance.
func LoadDir(dir string) ([]*schema.Type, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Field: "dir", Message: err.Error()}
	}
	if !info.IsDir() {
		return nil, &Error{Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &Error{Field: "dir", Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Field: "load", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(inst))
}

// Compile turns a CUE value holding a "type" struct into schema types.
func Compile(v cue.Value) ([]*schema.Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := v.Context().CompileString(declCUE, cue.Filename("decl.cue"))
	if err := def.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v = v.Unify(def)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := v.LookupPath(cue.ParsePath("type"))
	if !typesVal.Exists() {
		return nil, &Error{Field: "type", Message: "no types declared", Pos: v.Pos()}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*schema.Type
	for iter.Next() {
		t, err := compileType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func compileType(tag string, v cue.Value) (*schema.Type, error) {
	var opts []schema.Option

	if c := v.LookupPath(cue.ParsePath("collection")); c.Exists() {
		name, err := c.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		opts = append(opts, schema.Collection(name))
	}

	if ex := v.LookupPath(cue.ParsePath("exclude")); ex.Exists() {
		var names []string
		if err := ex.Decode(&names); err != nil {
			return nil, formatCUEError(err)
		}
		opts = append(opts, schema.Exclude(names...))
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []schema.Field
	for iter.Next() {
		f, err := compileField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	t, err := schema.Declare(tag, func() model.Model { return model.NewRecord(tag) }, fields, opts...)
	if err != nil {
		return nil, &Error{Field: "type." + tag, Message: err.Error(), Pos: v.Pos(), Err: err}
	}
	return t, nil
}

// fieldDecl mirrors #Field.
type fieldDecl struct {
	Kind      string `json:"kind"`
	Wire      string `json:"wire,omitempty"`
	Nested    string `json:"nested,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

func compileField(name string, v cue.Value) (schema.Field, error) {
	var d fieldDecl
	if err := v.Decode(&d); err != nil {
		return schema.Field{}, formatCUEError(err)
	}
	kind, err := schema.ParseKind(d.Kind)
	if err != nil {
		return schema.Field{}, &Error{Field: name, Message: err.Error(), Pos: v.Pos(), Err: err}
	}

	f := schema.Dynamic(name, kind)
	if d.Wire != "" {
		f = f.As(d.Wire)
	}
	if d.Nested != "" {
		f = f.Of(d.Nested)
	}
	if d.Encrypted {
		f = f.Secret()
	}
	return f, nil
}

// Tags returns the tags of compiled types, sorted.
func Tags(types []*schema.Type) []string {
	tags := make([]string, len(types))
	for i, t := range types {
		tags[i] = t.Tag()
	}
	sort.Strings(tags)
	return tags
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
