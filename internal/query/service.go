// Package query composes registry reads with signature verification. It
// holds no state of its own.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers    = 8
	defaultMaxEntries = 1 << 22

	ReasonNoSignature = "no signature stored"
	ReasonMismatch    = "signature does not match claimed signer"
)

// ErrListTooLarge is returned by ListAll when the registry holds more
// entries than one listing may allocate.
var ErrListTooLarge = errors.New("registry too large to list")

type Store interface {
	IsStored(ctx context.Context, hash common.Hash) (bool, error)
	Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, error)
	Count(ctx context.Context) (uint64, error)
	HashAtIndex(ctx context.Context, index uint64) (common.Hash, error)
}

type VerifyFunc func(hash common.Hash, claimed common.Address, sig []byte) (bool, error)

type Options struct {
	// Workers bounds concurrent per-index fetches in ListAll.
	Workers int
	// MaxEntries caps the entries a single ListAll allocates.
	MaxEntries uint64
	Verify     VerifyFunc
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Service struct {
	store      Store
	verify     VerifyFunc
	workers    int
	maxEntries uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(store Store, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Verify == nil {
		opts.Verify = crypto.Verify
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:      store,
		verify:     opts.Verify,
		workers:    opts.Workers,
		maxEntries: opts.MaxEntries,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Lookup checks existence before fetching. ok is false for unknown hashes.
func (s *Service) Lookup(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error) {
	stored, err := s.store.IsStored(ctx, hash)
	if err != nil {
		return models.DocumentRecord{}, false, err
	}
	if !stored {
		return models.DocumentRecord{}, false, nil
	}
	rec, err := s.store.Get(ctx, hash)
	if errors.Is(err, registry.ErrDocumentNotFound) {
		return models.DocumentRecord{}, false, nil
	}
	if err != nil {
		return models.DocumentRecord{}, false, err
	}
	return rec, true, nil
}

// LookupAndVerify fetches hash and checks its stored signature against
// claimed. Absence and a failed check are results, not errors; only read
// failures are returned as errors.
func (s *Service) LookupAndVerify(ctx context.Context, hash common.Hash, claimed common.Address) (models.VerificationResult, error) {
	result := models.VerificationResult{Hash: hash, ClaimedSigner: claimed}
	rec, ok, err := s.Lookup(ctx, hash)
	if err != nil {
		return models.VerificationResult{}, err
	}
	if !ok {
		result.Status = models.VerificationNotFound
		s.metrics.Verification(result.Status)
		return result, nil
	}
	result.Record = &rec
	result.Status, result.Reason = s.judge(rec, claimed)
	s.metrics.Verification(result.Status)
	return result, nil
}

// ListAll enumerates every index. Per-index failures are recorded on the
// entry and do not stop the others; only a failing or oversized Count
// aborts.
func (s *Service) ListAll(ctx context.Context, verify bool) (models.DocumentListing, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return models.DocumentListing{}, fmt.Errorf("list documents: %w", err)
	}
	if count > s.maxEntries {
		return models.DocumentListing{}, fmt.Errorf("list documents: %w: count %d exceeds %d", ErrListTooLarge, count, s.maxEntries)
	}
	entries := make([]models.ListEntry, count)

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := uint64(0); i < count; i++ {
		entries[i].Index = i
		g.Go(func() error {
			s.fill(ctx, &entries[i], verify)
			return nil
		})
	}
	_ = g.Wait()

	listing := models.DocumentListing{Count: count, Entries: entries}
	for _, entry := range entries {
		if entry.Error != "" {
			listing.Failed++
		}
	}
	if listing.Failed > 0 {
		s.logger.Warn("listing incomplete", "count", count, "failed", listing.Failed)
	}
	return listing, nil
}

func (s *Service) fill(ctx context.Context, entry *models.ListEntry, verify bool) {
	if err := ctx.Err(); err != nil {
		entry.Error = err.Error()
		return
	}
	hash, err := s.store.HashAtIndex(ctx, entry.Index)
	if err != nil {
		entry.Error = err.Error()
		return
	}
	entry.Hash = &hash
	rec, err := s.store.Get(ctx, hash)
	if err != nil {
		entry.Error = err.Error()
		return
	}
	entry.Record = &rec
	if verify {
		status, _ := s.judge(rec, rec.Signer)
		valid := status == models.VerificationValid
		entry.Verified = &valid
	}
}

func (s *Service) judge(rec models.DocumentRecord, claimed common.Address) (string, string) {
	if len(rec.Signature) == 0 {
		return models.VerificationInvalid, ReasonNoSignature
	}
	ok, err := s.verify(rec.Hash, claimed, rec.Signature)
	if err != nil {
		return models.VerificationInvalid, err.Error()
	}
	if !ok {
		return models.VerificationInvalid, ReasonMismatch
	}
	return models.VerificationValid, ""
}
