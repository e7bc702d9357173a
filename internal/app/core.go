package app

import (
	"context"

	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

type RegistryAPI interface {
	HashDocument(content []byte) common.Hash
	NormalizeHash(input string) (common.Hash, error)

	Wallets() []models.IdentityInfo
	ActivateWallet(index int) (models.IdentityInfo, error)
	DeactivateWallet()
	ActiveWallet() (models.IdentityInfo, bool)
	SignDocument(hash common.Hash) (models.Signature, common.Address, error)
	VerifySignature(hash common.Hash, signer common.Address, signature []byte) (bool, error)

	Store(ctx context.Context, hash common.Hash, signer common.Address, signature []byte, timestamp uint64) (models.PendingStore, error)
	StoreBatch(ctx context.Context, hashes []common.Hash, signatures [][]byte, signer common.Address, timestamp uint64) (models.PendingStore, error)
	SignAndStore(ctx context.Context, hash common.Hash) (models.PendingStore, error)
	Await(ctx context.Context, pendingID string) (models.StoreReceipt, error)

	IsStored(ctx context.Context, hash common.Hash) (bool, error)
	Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, error)
	Count(ctx context.Context) (uint64, error)
	HashAtIndex(ctx context.Context, index uint64) (common.Hash, error)
	Lookup(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error)
	LookupAndVerify(ctx context.Context, hash common.Hash, claimed common.Address) (models.VerificationResult, error)
	ListAll(ctx context.Context, verify bool) (models.DocumentListing, error)
}
