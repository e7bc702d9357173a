package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/composition/daemon/servicefactory"
	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/crypto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// openService builds the registry described by --config. A config without a
// persistent registry falls back to config.DefaultRegistryPath. Logs go to
// stderr as text, warnings only unless --verbose.
func openService(opts *RootOptions, cmd *cobra.Command) (*app.Service, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errLoadConfig, err)
	}
	logging := config.LoggingConfig{Level: "warn", Format: config.FormatText}
	if opts.Verbose {
		logging.Level = "debug"
	}
	logger := app.NewLogger(cmd.ErrOrStderr(), logging)
	if !cfg.Registry.Persistent() {
		path, err := config.DefaultRegistryPath()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errLoadConfig, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
		cfg.Registry.Backend = config.BackendSQLite
		cfg.Registry.Path = path
		logger.Debug("using default registry", "path", path)
	}
	return servicefactory.BuildService(cfg, logger)
}

// resolveHash reads arg as a document path when such a file exists and as a
// hash otherwise.
func resolveHash(arg string) (common.Hash, string, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		h, err := crypto.HashFile(arg)
		if err != nil {
			return common.Hash{}, "", fmt.Errorf("hash %s: %w", arg, err)
		}
		return h, arg, nil
	}
	h, err := crypto.NormalizeHash(arg)
	if err != nil {
		return common.Hash{}, "", fmt.Errorf("%q is neither a readable file nor a hash: %w", arg, err)
	}
	return h, "", nil
}
