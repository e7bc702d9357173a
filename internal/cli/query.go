package cli

import (
	"fmt"
	"strings"
	"time"

	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/pkg/models"

	"github.com/spf13/cobra"
)

type recordView models.DocumentRecord

func (r recordView) String() string {
	sig := models.Signature(r.Signature).String()
	if sig == "" {
		sig = "(none)"
	}
	return fmt.Sprintf("hash:      %s\nsigner:    %s\ntimestamp: %d (%s)\nsignature: %s",
		r.Hash.Hex(), r.Signer.Hex(), r.Timestamp, time.Unix(int64(r.Timestamp), 0).UTC().Format(time.RFC3339), sig)
}

type lookupResult struct {
	Found  bool                   `json:"found"`
	Record *models.DocumentRecord `json:"record,omitempty"`
}

func (r lookupResult) String() string {
	if !r.Found {
		return "not found"
	}
	return recordView(*r.Record).String()
}

type verificationView models.VerificationResult

func (v verificationView) String() string {
	line := fmt.Sprintf("%s: %s claimed by %s", v.Status, v.Hash.Hex(), v.ClaimedSigner.Hex())
	if v.Reason != "" {
		line += " (" + v.Reason + ")"
	}
	if v.Record != nil {
		line += "\n" + recordView(*v.Record).String()
	}
	return line
}

type signatureCheck struct {
	Valid bool `json:"valid"`
}

func (c signatureCheck) String() string {
	if c.Valid {
		return "signature valid"
	}
	return "signature does not match signer"
}

type listingView models.DocumentListing

func (l listingView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s)", l.Count)
	for _, e := range l.Entries {
		b.WriteByte('\n')
		switch {
		case e.Error != "":
			fmt.Fprintf(&b, "%5d  error: %s", e.Index, e.Error)
		case e.Record != nil:
			fmt.Fprintf(&b, "%5d  %s  %s  %d", e.Index, e.Record.Hash.Hex(), e.Record.Signer.Hex(), e.Record.Timestamp)
			if e.Verified != nil {
				fmt.Fprintf(&b, "  verified=%t", *e.Verified)
			}
		}
	}
	if l.Failed > 0 {
		fmt.Fprintf(&b, "\n%d entries could not be read", l.Failed)
	}
	return b.String()
}

type countResult struct {
	Count uint64 `json:"count"`
}

func (c countResult) String() string {
	return fmt.Sprintf("%d", c.Count)
}

func newQueryCommand(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return newQueryCommand("get <file|hash>", "Print a stored record; fails when absent", cobra.ExactArgs(1),
		func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			hash, _, err := resolveHash(args[0])
			if err != nil {
				return f.Fail("resolve document", err)
			}
			svc, err := openService(rootOpts, cmd)
			if err != nil {
				return f.Fail("open registry", err)
			}
			defer svc.Close()
			rec, err := svc.Get(cmd.Context(), hash)
			if err != nil {
				return f.Fail("get record", err)
			}
			return f.Success(recordView(rec))
		})
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	return newQueryCommand("lookup <file|hash>", "Report whether a document is stored", cobra.ExactArgs(1),
		func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			hash, _, err := resolveHash(args[0])
			if err != nil {
				return f.Fail("resolve document", err)
			}
			svc, err := openService(rootOpts, cmd)
			if err != nil {
				return f.Fail("open registry", err)
			}
			defer svc.Close()
			rec, found, err := svc.Lookup(cmd.Context(), hash)
			if err != nil {
				return f.Fail("lookup record", err)
			}
			if !found {
				if err := f.Failed(lookupResult{}); err != nil {
					return err
				}
				return NewExitError(ExitFailure, "document not found")
			}
			return f.Success(lookupResult{Found: true, Record: &rec})
		})
}

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Signer string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "verify <file|hash> --signer ADDR",
		Short: "Check a document against a claimed signer",
		Long: `Look a document up and check that its stored signature recovers to the
claimed signer. Prints not_found, invalid or valid; exits 1 unless valid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Signer, "signer", "s", "", "claimed signer address (required)")
	_ = cmd.MarkFlagRequired("signer")
	return cmd
}

func runVerify(opts *VerifyOptions, target string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	hash, _, err := resolveHash(target)
	if err != nil {
		return f.Fail("resolve document", err)
	}
	claimed, err := crypto.ParseAddress(opts.Signer)
	if err != nil {
		return f.Fail("parse signer", err)
	}
	svc, err := openService(opts.RootOptions, cmd)
	if err != nil {
		return f.Fail("open registry", err)
	}
	defer svc.Close()

	result, err := svc.LookupAndVerify(cmd.Context(), hash, claimed)
	if err != nil {
		return f.Fail("verify document", err)
	}
	if !result.Valid() {
		if err := f.Failed(verificationView(result)); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "verification "+result.Status)
	}
	return f.Success(verificationView(result))
}

// CheckSignatureOptions holds flags for the check-signature command.
type CheckSignatureOptions struct {
	*RootOptions
	Signer    string
	Signature string
}

// NewCheckSignatureCommand creates the check-signature command.
func NewCheckSignatureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckSignatureOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "check-signature <file|hash> --signer ADDR --signature SIG",
		Short:         "Verify a signature without touching the registry",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd)
			hash, _, err := resolveHash(args[0])
			if err != nil {
				return f.Fail("resolve document", err)
			}
			signer, err := crypto.ParseAddress(opts.Signer)
			if err != nil {
				return f.Fail("parse signer", err)
			}
			sig, err := crypto.ParseSignature(opts.Signature)
			if err != nil {
				return f.Fail("parse signature", err)
			}
			ok, err := crypto.Verify(hash, signer, sig)
			if err != nil {
				return f.Fail("verify signature", err)
			}
			if !ok {
				if err := f.Failed(signatureCheck{}); err != nil {
					return err
				}
				return NewExitError(ExitFailure, "signature does not match signer")
			}
			return f.Success(signatureCheck{Valid: true})
		},
	}
	cmd.Flags().StringVarP(&opts.Signer, "signer", "s", "", "claimed signer address (required)")
	cmd.Flags().StringVar(&opts.Signature, "signature", "", "0x-prefixed signature (required)")
	_ = cmd.MarkFlagRequired("signer")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var verify bool
	cmd := newQueryCommand("list", "List every stored document in index order", cobra.NoArgs,
		func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := openService(rootOpts, cmd)
			if err != nil {
				return f.Fail("open registry", err)
			}
			defer svc.Close()
			listing, err := svc.ListAll(cmd.Context(), verify)
			if err != nil {
				return f.Fail("list documents", err)
			}
			if listing.Failed > 0 {
				f.VerboseLog("%d of %d entries failed", listing.Failed, listing.Count)
			}
			return f.Success(listingView(listing))
		})
	cmd.Flags().BoolVar(&verify, "verify", false, "check each signature against its stored signer")
	return cmd
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return newQueryCommand("count", "Print the number of stored documents", cobra.NoArgs,
		func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := openService(rootOpts, cmd)
			if err != nil {
				return f.Fail("open registry", err)
			}
			defer svc.Close()
			n, err := svc.Count(cmd.Context())
			if err != nil {
				return f.Fail("count documents", err)
			}
			return f.Success(countResult{Count: n})
		})
}
