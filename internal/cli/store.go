package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const defaultCommitTimeout = 30 * time.Second

type storeResult struct {
	PendingID  string         `json:"pending_id"`
	Hashes     []common.Hash  `json:"hashes"`
	Signer     common.Address `json:"signer"`
	FirstIndex uint64         `json:"first_index"`
	Signed     bool           `json:"signed"`
}

func (r storeResult) String() string {
	var b strings.Builder
	for i, h := range r.Hashes {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "stored %s at index %d by %s", h.Hex(), r.FirstIndex+uint64(i), r.Signer.Hex())
		if !r.Signed {
			b.WriteString(" (unsigned)")
		}
	}
	return b.String()
}

// StoreOptions holds flags for the store and store-batch commands.
type StoreOptions struct {
	*RootOptions
	Wallet    int
	Unsigned  bool
	Timestamp uint64
	Timeout   time.Duration
}

func (o *StoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.Wallet, "wallet", "w", 0, "index of the submitting wallet")
	cmd.Flags().BoolVar(&o.Unsigned, "unsigned", false, "store without a signature")
	cmd.Flags().Uint64Var(&o.Timestamp, "timestamp", 0, "record timestamp in unix seconds (default now)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", defaultCommitTimeout, "how long to wait for the commit")
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store <file|hash>",
		Short: "Sign and record a document in the registry",
		Long: `Sign a document hash with the wallet at --wallet and record it. The
command waits for the commit and prints the assigned index.

A hash already in the registry is rejected; records are never replaced.

Example:
  docctl store ./contract.pdf --wallet 0
  docctl store 0x2cf2...9824 --unsigned --timestamp 1700000000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(opts, args, cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewStoreBatchCommand creates the store-batch command.
func NewStoreBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store-batch <file|hash>...",
		Short: "Record several documents atomically",
		Long: `Record several documents under one wallet and one timestamp. Either
every document is stored, at consecutive indexes, or none is.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(opts, args, cmd)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runStore(opts *StoreOptions, targets []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	hashes := make([]common.Hash, 0, len(targets))
	for _, target := range targets {
		h, source, err := resolveHash(target)
		if err != nil {
			return f.Fail("resolve document", err)
		}
		if source != "" {
			f.VerboseLog("hashed %s -> %s", source, h.Hex())
		}
		hashes = append(hashes, h)
	}

	svc, err := openService(opts.RootOptions, cmd)
	if err != nil {
		return f.Fail("open registry", err)
	}
	defer svc.Close()

	info, err := svc.ActivateWallet(opts.Wallet)
	if err != nil {
		return f.Fail("activate wallet", err)
	}
	sigs, err := signAll(svc, hashes, opts.Unsigned)
	if err != nil {
		return f.Fail("sign documents", err)
	}

	ctx := cmd.Context()
	var pending models.PendingStore
	if len(hashes) == 1 {
		pending, err = svc.Store(ctx, hashes[0], info.Address, sigs[0], opts.Timestamp)
	} else {
		pending, err = svc.StoreBatch(ctx, hashes, sigs, info.Address, opts.Timestamp)
	}
	if err != nil {
		return f.Fail("submit", err)
	}
	f.VerboseLog("submitted %s, waiting up to %s", pending.PendingID, opts.Timeout)

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	receipt, err := svc.Await(waitCtx, pending.PendingID)
	if err != nil {
		return f.Fail("commit", err)
	}
	return f.Success(storeResult{
		PendingID:  receipt.PendingID,
		Hashes:     receipt.Hashes,
		Signer:     info.Address,
		FirstIndex: receipt.FirstIndex,
		Signed:     !opts.Unsigned,
	})
}

func signAll(svc *app.Service, hashes []common.Hash, unsigned bool) ([][]byte, error) {
	sigs := make([][]byte, len(hashes))
	if unsigned {
		return sigs, nil
	}
	for i, h := range hashes {
		sig, _, err := svc.SignDocument(h)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}
	return sigs, nil
}
