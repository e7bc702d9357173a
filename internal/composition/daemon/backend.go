package daemon

import (
	"errors"
	"fmt"

	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/securestore"
	"docregistry/go-backend/internal/storage"
	"docregistry/go-backend/internal/substrate"
)

// OpenBackend opens the committed-state store selected by cfg. The memory
// backend persists a snapshot only when a path is configured, encrypted when
// a passphrase is also set.
func OpenBackend(cfg config.RegistryConfig) (substrate.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		if cfg.Path == "" {
			return storage.NewRecordStore(), nil
		}
		store, err := storage.NewEncryptedPersistentRecordStore(cfg.Path, cfg.Passphrase)
		if errors.Is(err, securestore.ErrAuthFailed) {
			return nil, fmt.Errorf("open registry snapshot %s: wrong DOCREG_REGISTRY_PASSPHRASE or tampered file: %w", cfg.Path, err)
		}
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		store, err := storage.OpenSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}
