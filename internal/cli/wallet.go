package cli

import (
	"fmt"
	"strings"

	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type walletList []models.IdentityInfo

func (l walletList) String() string {
	var b strings.Builder
	for i, w := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d  %s  %s", w.Index, w.Address.Hex(), w.Path)
	}
	return b.String()
}

type signResult struct {
	Hash      common.Hash      `json:"hash"`
	Signer    common.Address   `json:"signer"`
	Signature models.Signature `json:"signature"`
}

func (r signResult) String() string {
	return fmt.Sprintf("hash:      %s\nsigner:    %s\nsignature: %s", r.Hash.Hex(), r.Signer.Hex(), r.Signature)
}

// NewWalletsCommand creates the wallets command.
func NewWalletsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "wallets",
		Short:         "List the wallets derived from the configured seed",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := openService(rootOpts, cmd)
			if err != nil {
				return f.Fail("open registry", err)
			}
			defer svc.Close()
			return f.Success(walletList(svc.Wallets()))
		},
	}
}

// SignOptions holds flags for the sign command.
type SignOptions struct {
	*RootOptions
	Wallet int
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign <file|hash>",
		Short: "Sign a document hash with a derived wallet",
		Long: `Sign a document hash with the wallet at --wallet, using the
personal-message convention. Nothing is stored.

Example:
  docctl sign ./contract.pdf --wallet 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(opts, args[0], cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.Wallet, "wallet", "w", 0, "index of the signing wallet")
	return cmd
}

func runSign(opts *SignOptions, target string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	hash, _, err := resolveHash(target)
	if err != nil {
		return f.Fail("resolve document", err)
	}
	svc, err := openService(opts.RootOptions, cmd)
	if err != nil {
		return f.Fail("open registry", err)
	}
	defer svc.Close()

	if _, err := svc.ActivateWallet(opts.Wallet); err != nil {
		return f.Fail("activate wallet", err)
	}
	sig, signer, err := svc.SignDocument(hash)
	if err != nil {
		return f.Fail("sign document", err)
	}
	return f.Success(signResult{Hash: hash, Signer: signer, Signature: sig})
}
