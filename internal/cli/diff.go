package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/changeset"
	"github.com/roach88/docmap/internal/wire"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	MappingFlags
	Snapshot string // stored document
	Current  string // edited document
}

// DiffResult is the JSON payload of the diff command.
type DiffResult struct {
	Dirty  []string        `json:"dirty"`
	Set    []string        `json:"set"`
	Unset  []string        `json:"unset"`
	Update json.RawMessage `json:"update"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compute the change set between two documents",
		Long: `Compute the partial update that turns a stored document into an
edited one.

Both documents are inflated into the declared type; the edited instance is
then compared against the stored snapshot exactly as a persistence layer
would before writing. The result is printed as a $set/$unset update.

Examples:
  docmap diff --schema ./types --type user --snapshot old.json --current new.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, opts, cmd)
		},
	}

	addMappingFlags(cmd, &opts.MappingFlags)
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "stored document (extended JSON)")
	cmd.Flags().StringVar(&opts.Current, "current", "", "edited document (extended JSON)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("current")

	return cmd
}

func runDiff(rootOpts *RootOptions, opts *DiffOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
	if err != nil {
		return err
	}

	snapDoc, err := readDocument(opts.Snapshot, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "reading snapshot", err)
	}
	if !wire.Has(snapDoc, wire.IDKey) {
		return formatter.Fail(ExitCommandError, ErrCodeDocument,
			fmt.Sprintf("snapshot has no %s", wire.IDKey), nil)
	}
	curDoc, err := readDocument(opts.Current, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "reading current document", err)
	}

	base, err := env.Mapper.Inflate(opts.Type, snapDoc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "inflating snapshot", err)
	}
	current, err := env.Mapper.Inflate(opts.Type, curDoc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "inflating current document", err)
	}
	rebase(current, base)

	builder := changeset.NewBuilder(env.Mapper)
	names, err := builder.Dirty(current)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "computing dirty set", err)
	}
	cs, err := builder.Build(current, false)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "building change set", err)
	}

	update, err := documentJSON(cs.Update())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "rendering update", err)
	}

	result := DiffResult{
		Dirty:  append([]string{}, names...),
		Set:    cs.SetKeys(),
		Unset:  cs.Unset,
		Update: update,
	}
	text := string(update)
	if cs.Empty() {
		text = "No changes."
	}
	return formatter.Result(text, result)
}
