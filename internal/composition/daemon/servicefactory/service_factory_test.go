package servicefactory

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"docregistry/go-backend/internal/config"
)

func TestBuildServiceSQLiteRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Wallet.Mnemonic = "test test test test test test test test test test test junk"
	cfg.Wallet.Count = 2
	cfg.Registry.Backend = config.BackendSQLite
	cfg.Registry.Path = filepath.Join(t.TempDir(), "registry.db")
	logger := slog.New(slog.DiscardHandler)

	svc, err := BuildService(cfg, logger)
	if err != nil {
		t.Fatalf("build service failed: %v", err)
	}
	if got := len(svc.Wallets()); got != 2 {
		t.Fatalf("expected 2 wallets, got %d", got)
	}
	if _, err := svc.ActivateWallet(0); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	ctx := context.Background()
	hash := svc.HashDocument([]byte("persisted"))
	p, err := svc.SignAndStore(ctx, hash)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if _, err := svc.Await(ctx, p.PendingID); err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := BuildService(cfg, logger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	stored, err := reopened.IsStored(ctx, hash)
	if err != nil || !stored {
		t.Fatalf("expected stored after reopen, got %v, %v", stored, err)
	}
}

func TestBuildServiceRejectsBadMnemonic(t *testing.T) {
	cfg := config.Default()
	cfg.Wallet.Mnemonic = "not a valid phrase"
	if _, err := BuildService(cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected derive error")
	}
}
