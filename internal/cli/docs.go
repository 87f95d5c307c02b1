package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/convert"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/store"
)

// StoreOptions holds flags for commands that use the collection store.
type StoreOptions struct {
	MappingFlags
	DB string
}

// PutResult is the JSON payload of the put command.
type PutResult struct {
	ID    string   `json:"id"`
	Op    string   `json:"op"` // "insert" | "update" | "none"
	Set   []string `json:"set"`
	Unset []string `json:"unset"`
}

// DocumentResult is the JSON payload of the get command.
type DocumentResult struct {
	Documents []json.RawMessage `json:"documents"`
}

// JournalEntry is one journal row in JSON output.
type JournalEntry struct {
	Seq      int64    `json:"seq"`
	OpID     string   `json:"op_id"`
	DocID    string   `json:"doc_id"`
	Kind     string   `json:"kind"`
	Set      []string `json:"set"`
	Unset    []string `json:"unset"`
	Revision int64    `json:"revision"`
}

func addStoreFlags(cmd *cobra.Command, opts *StoreOptions) {
	addMappingFlags(cmd, &opts.MappingFlags)
	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database")
	_ = cmd.MarkFlagRequired("type")
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Store a document",
		Long: `Store an extended JSON document in the type's collection.

A document without _id is inserted in full and receives a new id. A
document with _id replaces the stored one through a partial update: only
the changed keys are written. The input holds encrypted fields in
plaintext; with --key they are encrypted before they are stored.

Examples:
  docmap put --db docs.db --schema ./types --type user user.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, opts, args[0], cmd)
		},
	}

	addStoreFlags(cmd, opts)
	return cmd
}

func runPut(rootOpts *RootOptions, opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
	if err != nil {
		return err
	}
	doc, err := readDocument(path, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "reading document", err)
	}
	m, err := env.Plain.Inflate(opts.Type, doc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "inflating document", err)
	}

	st, err := openStore(rootOpts, env, opts.DB, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	id, persisted := m.Meta().ID()
	if !persisted {
		newID, err := st.Insert(ctx, m)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "inserting document", err)
		}
		return formatter.Result(fmt.Sprintf("Inserted %s", newID.Hex()),
			PutResult{ID: newID.Hex(), Op: store.KindInsert, Set: []string{}, Unset: []string{}})
	}

	existing, err := st.Find(ctx, opts.Type, id)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(ExitFailure, ErrCodeNotFound,
			fmt.Sprintf("document %s not found (omit _id to insert)", id.Hex()), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "loading stored document", err)
	}
	rebase(m, existing)

	cs, err := st.Update(ctx, m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "updating document", err)
	}
	result := PutResult{ID: id.Hex(), Op: store.KindUpdate, Set: cs.SetKeys(), Unset: cs.Unset}
	if cs.Empty() {
		result.Op = "none"
		return formatter.Result(fmt.Sprintf("Unchanged %s", id.Hex()), result)
	}
	return formatter.Result(fmt.Sprintf("Updated %s: set %v unset %v", id.Hex(), result.Set, result.Unset), result)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Print stored documents",
		Long: `Print one stored document, or every document of the type's
collection in id order. Encrypted fields are decrypted when --key is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, opts, args, cmd)
		},
	}

	addStoreFlags(cmd, opts)
	return cmd
}

func runGet(rootOpts *RootOptions, opts *StoreOptions, args []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
	if err != nil {
		return err
	}
	st, err := openStore(rootOpts, env, opts.DB, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	var models []model.Model
	if len(args) == 1 {
		m, err := findByHex(cmd, st, opts.Type, args[0], formatter)
		if err != nil {
			return err
		}
		models = append(models, m)
	} else {
		if models, err = st.FindAll(ctx, opts.Type); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "loading documents", err)
		}
	}

	result := DocumentResult{Documents: make([]json.RawMessage, 0, len(models))}
	lines := make([]string, 0, len(models))
	for _, m := range models {
		doc, err := env.Mapper.Deflate(m, false)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDocument, "deflating document", err)
		}
		out, err := documentJSON(doc)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDocument, "rendering document", err)
		}
		result.Documents = append(result.Documents, out)
		lines = append(lines, string(out))
	}
	return formatter.Result(strings.Join(lines, "\n"), result)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a stored document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
			if err != nil {
				return err
			}
			st, err := openStore(rootOpts, env, opts.DB, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := findByHex(cmd, st, opts.Type, args[0], formatter)
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), m); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "deleting document", err)
			}
			return formatter.Result(fmt.Sprintf("Deleted %s", args[0]), PutResult{
				ID: args[0], Op: store.KindDelete, Set: []string{}, Unset: []string{},
			})
		},
	}

	addStoreFlags(cmd, opts)
	return cmd
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the write journal of a collection",
		Long: `List every insert, update and delete applied to the type's
collection, oldest first, with the keys each write touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
			if err != nil {
				return err
			}
			st, err := openStore(rootOpts, env, opts.DB, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			collection := env.Registry.MustLookup(opts.Type).Collection()
			entries, err := st.Journal(cmd.Context(), collection)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "reading journal", err)
			}

			out := make([]JournalEntry, 0, len(entries))
			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				out = append(out, JournalEntry{
					Seq:      e.Seq,
					OpID:     e.OpID,
					DocID:    e.DocID,
					Kind:     e.Kind,
					Set:      e.SetKeys,
					Unset:    e.UnsetKeys,
					Revision: e.Revision,
				})
				lines = append(lines, fmt.Sprintf("%d %s %s r%d set=%v unset=%v",
					e.Seq, e.Kind, e.DocID, e.Revision, e.SetKeys, e.UnsetKeys))
			}
			if len(lines) == 0 {
				lines = append(lines, "Journal is empty.")
			}
			return formatter.Result(strings.Join(lines, "\n"), out)
		},
	}

	addStoreFlags(cmd, opts)
	return cmd
}

// findByHex parses a hex id and loads the document, reporting failures
// through f.
func findByHex(cmd *cobra.Command, st *store.Store, tag, hexID string, f *OutputFormatter) (model.Model, error) {
	id, err := convert.ParseID(hexID)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDocument, "parsing id", err)
	}
	m, err := st.Find(cmd.Context(), tag, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("document %s not found", id.Hex()), nil)
	}
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "loading document", err)
	}
	return m, nil
}
