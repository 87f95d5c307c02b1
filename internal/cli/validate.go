package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/schema"
)

// FieldSummary describes one declared field.
type FieldSummary struct {
	Name      string `json:"name"`
	Wire      string `json:"wire"`
	Kind      string `json:"kind"`
	Nested    string `json:"nested,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Opaque    bool   `json:"opaque,omitempty"`
}

// TypeSummary describes one declared type.
type TypeSummary struct {
	Tag        string         `json:"tag"`
	Collection string         `json:"collection"`
	Fields     []FieldSummary `json:"fields"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Types []TypeSummary `json:"types"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &MappingFlags{}

	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate type declarations",
		Long: `Compile the CUE type declarations in a directory and list the types.

Nested fields whose type tag is not declared are reported as opaque;
their values pass through inflate and deflate unchanged.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.Schema = args[0]
			}
			return runValidate(rootOpts, flags, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, flags *MappingFlags, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	env, err := loadEnv(opts, flags, formatter)
	if err != nil {
		return err
	}

	result := ValidationResult{Valid: true, Types: summarize(env.Registry)}

	var b strings.Builder
	fmt.Fprintf(&b, "OK: %d type(s) declared", len(result.Types))
	for _, t := range result.Types {
		fmt.Fprintf(&b, "\n  %s (collection %s): %d field(s)", t.Tag, t.Collection, len(t.Fields))
		if !opts.Verbose {
			continue
		}
		for _, f := range t.Fields {
			fmt.Fprintf(&b, "\n    %s -> %s %s", f.Name, f.Wire, f.Kind)
			if f.Nested != "" {
				fmt.Fprintf(&b, " of %s", f.Nested)
			}
			if f.Opaque {
				b.WriteString(" (opaque)")
			}
			if f.Encrypted {
				b.WriteString(" (encrypted)")
			}
		}
	}
	return formatter.Result(b.String(), result)
}

// summarize lists registered types sorted by tag.
func summarize(reg *schema.Registry) []TypeSummary {
	out := make([]TypeSummary, 0)
	for _, tag := range reg.Tags() {
		t := reg.MustLookup(tag)
		ts := TypeSummary{Tag: t.Tag(), Collection: t.Collection(), Fields: []FieldSummary{}}
		for _, f := range t.Fields() {
			ts.Fields = append(ts.Fields, FieldSummary{
				Name:      f.Name,
				Wire:      f.Wire,
				Kind:      f.Kind.String(),
				Nested:    f.Nested,
				Encrypted: f.Encrypted,
				Opaque:    reg.Opaque(t, f),
			})
		}
		out = append(out, ts)
	}
	return out
}
