package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/notify"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/query"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/internal/substrate"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

var ErrMissingDependency = errors.New("missing service dependency")

type Deps struct {
	Session     *identity.Session
	Substrate   *substrate.Local
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	ListWorkers int
	// Now supplies the timestamp for stores that omit one.
	Now func() time.Time
}

type Service struct {
	session   *identity.Session
	substrate *substrate.Local
	registry  *registry.Registry
	query     *query.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

var _ DaemonService = (*Service)(nil)

func NewService(d Deps) (*Service, error) {
	if d.Session == nil || d.Substrate == nil {
		return nil, ErrMissingDependency
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	reg := registry.New(d.Substrate)
	return &Service{
		session:   d.Session,
		substrate: d.Substrate,
		registry:  reg,
		query: query.New(reg, query.Options{
			Workers: d.ListWorkers,
			Metrics: d.Metrics,
			Logger:  d.Logger,
		}),
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     d.Now,
	}, nil
}

func (s *Service) HashDocument(content []byte) common.Hash {
	return crypto.HashDocument(content)
}

func (s *Service) NormalizeHash(input string) (common.Hash, error) {
	return crypto.NormalizeHash(input)
}

func (s *Service) Wallets() []models.IdentityInfo {
	return s.session.Identities()
}

func (s *Service) ActivateWallet(index int) (models.IdentityInfo, error) {
	info, err := s.session.Activate(index)
	if err != nil {
		return models.IdentityInfo{}, err
	}
	s.logger.Info("wallet activated", "index", info.Index, "address", info.Address.Hex())
	return info, nil
}

func (s *Service) DeactivateWallet() {
	s.session.Deactivate()
	s.logger.Info("wallet deactivated")
}

func (s *Service) ActiveWallet() (models.IdentityInfo, bool) {
	return s.session.Active()
}

func (s *Service) SignDocument(hash common.Hash) (models.Signature, common.Address, error) {
	sig, signer, err := s.session.Sign(hash)
	if err != nil {
		return nil, common.Address{}, err
	}
	return sig, signer, nil
}

func (s *Service) VerifySignature(hash common.Hash, signer common.Address, signature []byte) (bool, error) {
	return crypto.Verify(hash, signer, signature)
}

// Store submits one record. A zero timestamp is replaced by the current
// unix time.
func (s *Service) Store(ctx context.Context, hash common.Hash, signer common.Address, signature []byte, timestamp uint64) (models.PendingStore, error) {
	p, err := s.registry.Store(ctx, hash, signer, signature, s.timestamp(timestamp))
	if err != nil {
		s.rejected(registry.MethodStore, err)
		return models.PendingStore{}, err
	}
	return p.Info(), nil
}

func (s *Service) StoreBatch(ctx context.Context, hashes []common.Hash, signatures [][]byte, signer common.Address, timestamp uint64) (models.PendingStore, error) {
	p, err := s.registry.StoreBatch(ctx, hashes, signatures, signer, s.timestamp(timestamp))
	if err != nil {
		s.rejected(registry.MethodStoreBatch, err)
		return models.PendingStore{}, err
	}
	return p.Info(), nil
}

// SignAndStore signs hash with the active wallet and stores it under that
// wallet's address.
func (s *Service) SignAndStore(ctx context.Context, hash common.Hash) (models.PendingStore, error) {
	sig, signer, err := s.session.Sign(hash)
	if err != nil {
		return models.PendingStore{}, err
	}
	return s.Store(ctx, hash, signer, sig, 0)
}

func (s *Service) Await(ctx context.Context, pendingID string) (models.StoreReceipt, error) {
	return s.registry.Await(ctx, pendingID)
}

func (s *Service) IsStored(ctx context.Context, hash common.Hash) (bool, error) {
	return s.registry.IsStored(ctx, hash)
}

func (s *Service) Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, error) {
	return s.registry.Get(ctx, hash)
}

func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.registry.Count(ctx)
}

func (s *Service) HashAtIndex(ctx context.Context, index uint64) (common.Hash, error) {
	return s.registry.HashAtIndex(ctx, index)
}

func (s *Service) Lookup(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error) {
	return s.query.Lookup(ctx, hash)
}

func (s *Service) LookupAndVerify(ctx context.Context, hash common.Hash, claimed common.Address) (models.VerificationResult, error) {
	return s.query.LookupAndVerify(ctx, hash, claimed)
}

func (s *Service) ListAll(ctx context.Context, verify bool) (models.DocumentListing, error) {
	return s.query.ListAll(ctx, verify)
}

func (s *Service) SubscribeDocuments(cursor int64, hash common.Hash) ([]notify.Event, <-chan notify.Event, func()) {
	return s.substrate.Subscribe(cursor, hash)
}

func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Close stops the commit loop and closes the backend.
func (s *Service) Close() error {
	return s.substrate.Close()
}

func (s *Service) timestamp(ts uint64) uint64 {
	if ts != 0 {
		return ts
	}
	return uint64(s.now().Unix())
}

func (s *Service) rejected(method string, err error) {
	if !errors.Is(err, registry.ErrDocumentAlreadyExists) && !errors.Is(err, registry.ErrArrayLengthMismatch) {
		return
	}
	reason := registry.RejectReason(err)
	s.metrics.StoreRejected(reason)
	s.logger.Debug("store rejected before submit", "method", method, "reason", reason)
}
