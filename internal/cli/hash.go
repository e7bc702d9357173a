package cli

import (
	"docregistry/go-backend/internal/crypto"

	"github.com/spf13/cobra"
)

type hashResult struct {
	Hash   string `json:"hash"`
	Source string `json:"source,omitempty"`
}

func (r hashResult) String() string {
	return r.Hash
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Compute the registry key of a document",
		Long: `Compute the SHA-256 registry key of a file's content.

The key depends only on the bytes, never on the file name or metadata.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			h, err := crypto.HashFile(args[0])
			if err != nil {
				return f.Fail("hash document", err)
			}
			return f.Success(hashResult{Hash: crypto.FormatHash(h), Source: args[0]})
		},
	}
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <text>",
		Short: "Canonicalize a user-entered hash",
		Long: `Canonicalize a hash typed or pasted by a user: whitespace and the 0x
prefix are dropped, case is folded, and exactly 64 hex characters must remain.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			h, err := crypto.NormalizeHashString(args[0])
			if err != nil {
				return f.Fail("normalize hash", err)
			}
			return f.Success(hashResult{Hash: h})
		},
	}
}
