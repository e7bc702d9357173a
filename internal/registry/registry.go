// Package registry is the append-only document registry. Mutations are
// handed to a Substrate that serializes them and makes the uniqueness check
// and the write one step; reads go straight to committed state.
package registry

import (
	"context"
	"fmt"
	"math"

	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MethodStore      = "store"
	MethodStoreBatch = "storeBatch"

	// MaxTimestamp is the largest timestamp every backend can hold.
	MaxTimestamp uint64 = math.MaxInt64
)

// Call is one submitted mutation. Records are applied in order and either
// all commit or none do.
type Call struct {
	Method  string
	Records []models.DocumentRecord
}

func (c Call) Hashes() []common.Hash {
	out := make([]common.Hash, 0, len(c.Records))
	for _, rec := range c.Records {
		out = append(out, rec.Hash)
	}
	return out
}

type Substrate interface {
	Submit(ctx context.Context, call Call) (string, error)
	Await(ctx context.Context, pendingID string) (models.StoreReceipt, error)
	IsStored(ctx context.Context, hash common.Hash) (bool, error)
	Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error)
	Count(ctx context.Context) (uint64, error)
	HashAt(ctx context.Context, index uint64) (common.Hash, bool, error)
}

// Pending is the handle for a submitted store. Abandoning Wait does not
// retract the submission.
type Pending struct {
	ID     string
	Hashes []common.Hash
	sub    Substrate
}

func (p *Pending) Wait(ctx context.Context) (models.StoreReceipt, error) {
	return p.sub.Await(ctx, p.ID)
}

func (p *Pending) Info() models.PendingStore {
	return models.PendingStore{PendingID: p.ID, Hashes: append([]common.Hash(nil), p.Hashes...)}
}

type Registry struct {
	sub Substrate
}

func New(sub Substrate) *Registry {
	return &Registry{sub: sub}
}

// Store submits one record. A hash that is already committed is rejected
// here; a collision that appears between this check and commit is reported
// by Wait.
func (r *Registry) Store(ctx context.Context, hash common.Hash, signer common.Address, signature []byte, timestamp uint64) (*Pending, error) {
	rec := models.DocumentRecord{
		Hash:      hash,
		Signer:    signer,
		Timestamp: timestamp,
		Signature: append(models.Signature(nil), signature...),
	}
	if err := checkTimestamp(timestamp); err != nil {
		return nil, err
	}
	if err := r.rejectStored(ctx, rec.Hash); err != nil {
		return nil, err
	}
	return r.submit(ctx, Call{Method: MethodStore, Records: []models.DocumentRecord{rec}})
}

// StoreBatch submits hashes[i] with signatures[i] under one signer and
// timestamp. Length mismatch fails before anything is submitted, and a
// batch that would collide, with the registry or with itself, is rejected
// as a whole.
func (r *Registry) StoreBatch(ctx context.Context, hashes []common.Hash, signatures [][]byte, signer common.Address, timestamp uint64) (*Pending, error) {
	if len(hashes) != len(signatures) {
		return nil, &ArrayLengthMismatchError{Hashes: len(hashes), Signatures: len(signatures)}
	}
	if err := checkTimestamp(timestamp); err != nil {
		return nil, err
	}
	seen := make(map[common.Hash]struct{}, len(hashes))
	records := make([]models.DocumentRecord, 0, len(hashes))
	for i, hash := range hashes {
		if _, dup := seen[hash]; dup {
			return nil, &DocumentAlreadyExistsError{Hash: hash}
		}
		seen[hash] = struct{}{}
		if err := r.rejectStored(ctx, hash); err != nil {
			return nil, err
		}
		records = append(records, models.DocumentRecord{
			Hash:      hash,
			Signer:    signer,
			Timestamp: timestamp,
			Signature: append(models.Signature(nil), signatures[i]...),
		})
	}
	return r.submit(ctx, Call{Method: MethodStoreBatch, Records: records})
}

func checkTimestamp(ts uint64) error {
	if ts > MaxTimestamp {
		return fmt.Errorf("%w: %d", ErrTimestampOutOfRange, ts)
	}
	return nil
}

// Await resolves a pending id obtained from an earlier submission.
func (r *Registry) Await(ctx context.Context, pendingID string) (models.StoreReceipt, error) {
	return r.sub.Await(ctx, pendingID)
}

func (r *Registry) IsStored(ctx context.Context, hash common.Hash) (bool, error) {
	return r.sub.IsStored(ctx, hash)
}

func (r *Registry) Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, error) {
	rec, ok, err := r.sub.Get(ctx, hash)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	if !ok {
		return models.DocumentRecord{}, &DocumentNotFoundError{Hash: hash}
	}
	return rec, nil
}

func (r *Registry) Count(ctx context.Context) (uint64, error) {
	return r.sub.Count(ctx)
}

func (r *Registry) HashAtIndex(ctx context.Context, index uint64) (common.Hash, error) {
	hash, ok, err := r.sub.HashAt(ctx, index)
	if err != nil {
		return common.Hash{}, err
	}
	if ok {
		return hash, nil
	}
	count, err := r.sub.Count(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash{}, &IndexOutOfRangeError{Index: index, Count: count}
}

func (r *Registry) rejectStored(ctx context.Context, hash common.Hash) error {
	stored, err := r.sub.IsStored(ctx, hash)
	if err != nil {
		return fmt.Errorf("check %s: %w", hash.Hex(), err)
	}
	if stored {
		return &DocumentAlreadyExistsError{Hash: hash}
	}
	return nil
}

func (r *Registry) submit(ctx context.Context, call Call) (*Pending, error) {
	id, err := r.sub.Submit(ctx, call)
	if err != nil {
		return nil, err
	}
	return &Pending{ID: id, Hashes: call.Hashes(), sub: r.sub}, nil
}
