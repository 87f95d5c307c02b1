package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/crypt"
	"github.com/roach88/docmap/internal/decl"
	"github.com/roach88/docmap/internal/mapper"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/store"
	"github.com/roach88/docmap/internal/wire"
)

// MappingFlags are the flags shared by commands that map documents.
type MappingFlags struct {
	Schema string // declaration directory
	Type   string // type tag
	Key    string // hex encryption key
}

// Env is the mapping context a command works in.
type Env struct {
	Types    []*schema.Type
	Registry *schema.Registry

	// Mapper decrypts encrypted fields on inflate and can encrypt them on
	// deflate when a key is configured.
	Mapper *mapper.Mapper

	// Plain never touches encryption. It reads documents whose encrypted
	// fields are still in plaintext.
	Plain *mapper.Mapper
}

// loadEnv compiles the declarations and builds the mapper. Errors are
// reported through f and returned as ExitErrors.
func loadEnv(opts *RootOptions, flags *MappingFlags, f *OutputFormatter) (*Env, error) {
	cfg := opts.config()
	dir := pick(flags.Schema, cfg.Schema)
	if dir == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "no schema directory: pass --schema or set schema in the config file", nil)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schema directory not found: %s", dir), nil)
	}

	types, err := decl.LoadDir(dir)
	if err != nil {
		return nil, f.Fail(ExitCommandError, declErrorCode(err), "loading declarations", err)
	}
	f.VerboseLog("Loaded %d type(s) from %s", len(types), dir)

	reg := schema.NewRegistry()
	if err := reg.Register(types...); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDeclaration, "registering declarations", err)
	}

	withLogger := mapper.WithLogger(opts.logger())
	mopts := []mapper.Option{withLogger}
	if hexKey := pick(flags.Key, cfg.Key); hexKey != "" {
		key, err := crypt.ParseKey(hexKey)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeKey, "reading key", err)
		}
		aead, err := crypt.NewAEAD(key)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeKey, "reading key", err)
		}
		mopts = append(mopts, mapper.WithGate(crypt.NewGate(aead)))
	}

	if flags.Type != "" {
		if _, err := reg.Lookup(flags.Type); err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeDeclaration, "resolving --type", err)
		}
	}

	return &Env{
		Types:    types,
		Registry: reg,
		Mapper:   mapper.New(reg, mopts...),
		Plain:    mapper.New(reg, withLogger),
	}, nil
}

// openStore opens the collection store on the env's mapper.
func openStore(opts *RootOptions, env *Env, dbFlag string, f *OutputFormatter) (*store.Store, error) {
	path := pick(dbFlag, opts.config().DB)
	if path == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "no database: pass --db or set db in the config file", nil)
	}
	st, err := store.Open(path, env.Mapper, store.WithLogger(opts.logger()))
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "opening store", err)
	}
	f.VerboseLog("Opened store %s", path)
	return st, nil
}

// readDocument reads an extended JSON document from path, or stdin for "-".
func readDocument(path string, stdin io.Reader) (bson.D, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := wire.FromExtJSON(data)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return doc, nil
}

// rebase makes current compare against base: current takes over base's
// identity and snapshot, so its change set is the difference between the
// two documents.
func rebase(current, base model.Model) {
	cm, bm := current.Meta(), base.Meta()
	if id, ok := bm.ID(); ok {
		cm.SetID(id)
	}
	cm.SetSnapshot(bm.Snapshot())
}

func declErrorCode(err error) string {
	var de *decl.Error
	if errors.As(err, &de) && de.Field == "dir" {
		return ErrCodeNoFiles
	}
	return ErrCodeDeclaration
}
