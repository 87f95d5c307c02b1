package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docmap/internal/wire"
)

// RoundtripOptions holds flags for the roundtrip command.
type RoundtripOptions struct {
	MappingFlags
	Encrypt   bool // apply field encryption on the way out
	Canonical bool // print canonical JSON instead of extended JSON
}

// RoundtripResult is the JSON payload of the roundtrip command.
type RoundtripResult struct {
	Type     string   `json:"type"`
	Overflow []string `json:"overflow"`
	Hash     string   `json:"hash"`
	Document any      `json:"document"`
}

// NewRoundtripCommand creates the roundtrip command.
func NewRoundtripCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoundtripOptions{}

	cmd := &cobra.Command{
		Use:   "roundtrip <file|->",
		Short: "Inflate a document and deflate it again",
		Long: `Inflate an extended JSON document into the declared type and
print the deflated result.

Unknown keys survive in the overflow bag and are written back after the
declared fields. With --key, encrypted fields are decrypted on the way in.
With --key and --encrypt the input is taken as plaintext and encrypted
fields are encrypted on the way out.

Examples:
  docmap roundtrip --schema ./types --type user user.json
  docmap roundtrip --schema ./types --type user --canonical - < user.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoundtrip(rootOpts, opts, args[0], cmd)
		},
	}

	addMappingFlags(cmd, &opts.MappingFlags)
	cmd.Flags().BoolVar(&opts.Encrypt, "encrypt", false, "treat input as plaintext and encrypt encrypted fields in the output")
	cmd.Flags().BoolVar(&opts.Canonical, "canonical", false, "print canonical JSON")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runRoundtrip(rootOpts *RootOptions, opts *RoundtripOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	env, err := loadEnv(rootOpts, &opts.MappingFlags, formatter)
	if err != nil {
		return err
	}

	in := env.Mapper
	if opts.Encrypt {
		if !env.Mapper.Gate().Enabled() {
			return formatter.Fail(ExitCommandError, ErrCodeKey, "--encrypt needs a key", nil)
		}
		in = env.Plain
	}

	doc, err := readDocument(path, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "reading document", err)
	}

	m, err := in.Inflate(opts.Type, doc)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "inflating document", err)
	}
	overflow := wire.Keys(m.Meta().Extras())
	formatter.VerboseLog("Overflow keys: %v", overflow)

	out, err := env.Mapper.Deflate(m, opts.Encrypt)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "deflating document", err)
	}

	hash, err := wire.Hash(out)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "hashing document", err)
	}
	formatter.VerboseLog("Content hash: %s", hash)

	text, data, err := renderDocument(out, opts.Canonical)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDocument, "rendering document", err)
	}
	return formatter.Result(text, RoundtripResult{Type: opts.Type, Overflow: overflow, Hash: hash, Document: data})
}

// renderDocument returns the text form and JSON payload of a document.
func renderDocument(doc bson.D, canonical bool) (string, json.RawMessage, error) {
	if canonical {
		out, err := wire.MarshalCanonical(doc)
		if err != nil {
			return "", nil, err
		}
		return string(out), json.RawMessage(out), nil
	}
	out, err := documentJSON(doc)
	if err != nil {
		return "", nil, err
	}
	return string(out), out, nil
}

// addMappingFlags registers the shared mapping flags on cmd.
func addMappingFlags(cmd *cobra.Command, flags *MappingFlags) {
	cmd.Flags().StringVar(&flags.Schema, "schema", "", "directory of .cue type declarations")
	cmd.Flags().StringVar(&flags.Type, "type", "", "type tag")
	cmd.Flags().StringVar(&flags.Key, "key", "", "hex field encryption key")
}
