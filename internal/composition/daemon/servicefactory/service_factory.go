package servicefactory

import (
	"fmt"
	"log/slog"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/composition/daemon"
	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/notify"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/substrate"
)

const notificationBacklog = 1024

// BuildService derives the wallets, opens the backend and starts the commit
// loop described by cfg. Closing the service releases all of them.
func BuildService(cfg config.Config, logger *slog.Logger) (*app.Service, error) {
	if logger == nil {
		logger = app.DefaultLogger()
	}
	session, err := identity.NewSessionFromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.PathTemplate, cfg.Wallet.Count)
	if err != nil {
		return nil, fmt.Errorf("derive wallets: %w", err)
	}
	backend, err := daemon.OpenBackend(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("open registry backend: %w", err)
	}
	m := metrics.New()
	sub := substrate.NewLocal(backend, substrate.Options{
		Retention: cfg.Registry.PendingRetention,
		Logger:    logger.With("component", "substrate"),
		Metrics:   m,
		Hub:       notify.NewHub(notificationBacklog),
	})
	svc, err := app.NewService(app.Deps{
		Session:     session,
		Substrate:   sub,
		Metrics:     m,
		Logger:      logger,
		ListWorkers: cfg.Registry.ListWorkers,
	})
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	logger.Info("registry service ready",
		"backend", cfg.Registry.Backend,
		"wallets", session.Len(),
		"encrypted", cfg.Registry.Passphrase != "",
	)
	return svc, nil
}
