package cli

import (
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/crypt"
)

// KeygenResult is the JSON payload of the keygen command.
type KeygenResult struct {
	Key string `json:"key"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a field encryption key",
		Long: `Print a new random field encryption key, hex encoded.

Pass it to other commands with --key or store it as key in the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			key, err := crypt.NewKey()
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeKey, "generating key", err)
			}
			s := hex.EncodeToString(key)
			return formatter.Result(s, KeygenResult{Key: s})
		},
	}

	return cmd
}
