package daemonserver

import (
	"log/slog"

	"docregistry/go-backend/internal/adapters/rpc"
	"docregistry/go-backend/internal/composition/daemon/servicefactory"
	"docregistry/go-backend/internal/config"
)

// NewRPCServer wires the registry service behind the RPC transport. The
// service is closed when the server stops, or here if the transport cannot
// be built.
func NewRPCServer(cfg config.Config, logger *slog.Logger) (*rpc.Server, error) {
	svc, err := servicefactory.BuildService(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := rpc.OptionsFromConfig(cfg.RPC)
	if logger != nil {
		opts.Logger = logger.With("component", "rpc")
	}
	srv, err := rpc.NewServer(svc, opts)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	return srv, nil
}
