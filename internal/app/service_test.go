package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/internal/storage"
	"docregistry/go-backend/internal/substrate"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wallet0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	wallet1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	fixedAt = time.Unix(1_700_000_000, 0)
)

func newTestService(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	session, err := identity.NewSessionFromMnemonic("", identity.PathTemplate, 3)
	require.NoError(t, err)
	m := metrics.New()
	sub := substrate.NewLocal(storage.NewRecordStore(), substrate.Options{Metrics: m})
	svc, err := NewService(Deps{
		Session:   session,
		Substrate: sub,
		Metrics:   m,
		Now:       func() time.Time { return fixedAt },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, m
}

func storeAndWait(t *testing.T, svc *Service, content string) models.StoreReceipt {
	t.Helper()
	ctx := context.Background()
	p, err := svc.SignAndStore(ctx, svc.HashDocument([]byte(content)))
	require.NoError(t, err)
	receipt, err := svc.Await(ctx, p.PendingID)
	require.NoError(t, err)
	return receipt
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestSignAndStoreRequiresActiveWallet(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SignAndStore(context.Background(), svc.HashDocument([]byte("doc")))
	require.ErrorIs(t, err, crypto.ErrSigningUnavailable)
}

func TestSignAndStoreThenVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	info, err := svc.ActivateWallet(0)
	require.NoError(t, err)
	assert.Equal(t, wallet0, info.Address)

	receipt := storeAndWait(t, svc, "contract.pdf")
	assert.Equal(t, uint64(0), receipt.FirstIndex)

	hash := svc.HashDocument([]byte("contract.pdf"))
	rec, err := svc.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, wallet0, rec.Signer)
	assert.Equal(t, uint64(fixedAt.Unix()), rec.Timestamp, "zero timestamp is filled from the clock")

	res, err := svc.LookupAndVerify(ctx, hash, wallet0)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	res, err = svc.LookupAndVerify(ctx, hash, wallet1)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationInvalid, res.Status)
}

func TestStoreKeepsExplicitTimestamp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	hash := svc.HashDocument([]byte("dated"))
	p, err := svc.Store(ctx, hash, wallet1, nil, 42)
	require.NoError(t, err)
	_, err = svc.Await(ctx, p.PendingID)
	require.NoError(t, err)

	rec, err := svc.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), rec.Timestamp)
	assert.Empty(t, rec.Signature)
}

func TestDuplicateStoreCountsRejection(t *testing.T) {
	svc, m := newTestService(t)
	_, err := svc.ActivateWallet(1)
	require.NoError(t, err)
	storeAndWait(t, svc, "once")

	_, err = svc.SignAndStore(context.Background(), svc.HashDocument([]byte("once")))
	require.ErrorIs(t, err, registry.ErrDocumentAlreadyExists)

	_, err = svc.StoreBatch(context.Background(), []common.Hash{{1}}, nil, wallet1, 0)
	require.ErrorIs(t, err, registry.ErrArrayLengthMismatch)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var rejected float64
	for _, mf := range families {
		if mf.GetName() != "docregistry_store_rejected_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			rejected += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), rejected)
}

func TestListAllAfterBatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.ActivateWallet(0)
	require.NoError(t, err)

	var hashes []common.Hash
	var sigs [][]byte
	for _, c := range []string{"a", "b", "c"} {
		h := svc.HashDocument([]byte(c))
		sig, signer, err := svc.SignDocument(h)
		require.NoError(t, err)
		require.Equal(t, wallet0, signer)
		hashes = append(hashes, h)
		sigs = append(sigs, sig)
	}
	p, err := svc.StoreBatch(ctx, hashes, sigs, wallet0, 0)
	require.NoError(t, err)
	_, err = svc.Await(ctx, p.PendingID)
	require.NoError(t, err)

	listing, err := svc.ListAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, listing.Entries, 3)
	for i, entry := range listing.Entries {
		require.NotNil(t, entry.Hash)
		assert.Equal(t, hashes[i], *entry.Hash)
		require.NotNil(t, entry.Verified)
		assert.True(t, *entry.Verified)
	}
}

func TestSubscribeDocumentsSeesCommit(t *testing.T) {
	svc, _ := newTestService(t)
	_, events, cancel := svc.SubscribeDocuments(0, common.Hash{})
	defer cancel()

	_, err := svc.ActivateWallet(2)
	require.NoError(t, err)
	storeAndWait(t, svc, "streamed")

	select {
	case ev := <-events:
		payload, ok := ev.Payload.(models.DocumentStoredEvent)
		require.True(t, ok)
		assert.Equal(t, svc.HashDocument([]byte("streamed")), payload.Hash)
	case <-time.After(2 * time.Second):
		t.Fatal("no stored event")
	}
}

func TestWalletLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Len(t, svc.Wallets(), 3)
	_, ok := svc.ActiveWallet()
	assert.False(t, ok)

	_, err := svc.ActivateWallet(3)
	require.ErrorIs(t, err, identity.ErrIdentityIndex)

	_, err = svc.ActivateWallet(1)
	require.NoError(t, err)
	active, ok := svc.ActiveWallet()
	require.True(t, ok)
	assert.Equal(t, wallet1, active.Address)

	svc.DeactivateWallet()
	_, ok = svc.ActiveWallet()
	assert.False(t, ok)
}

func TestNewLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LoggingConfig{Level: "debug", Format: config.FormatText})
	logger.Debug("boot", "mnemonic", identity.DefaultMnemonic, "backend", "memory")
	out := buf.String()
	assert.NotContains(t, out, "junk")
	assert.True(t, strings.Contains(out, "backend=memory"))
}

func TestMetricsExposed(t *testing.T) {
	svc, m := newTestService(t)
	assert.Same(t, m, svc.Metrics())
	_, err := svc.ActivateWallet(0)
	require.NoError(t, err)
	storeAndWait(t, svc, "counted")
	assert.Positive(t, testutil.CollectAndCount(m.Registry(), "docregistry_documents_stored_total"))
}
