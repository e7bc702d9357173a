package rpc

import (
	"errors"
	"log/slog"
	"strings"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/platform/ratelimiter"
)

var ErrTokenRequired = errors.New("rpc token is required")

type Options struct {
	Addr           string
	Token          string
	RequireToken   bool
	RateLimit      ratelimiter.Config
	AllowedOrigins []string
	Streams        StreamLimits
	Logger         *slog.Logger
}

// OptionsFromConfig maps the rpc config section onto server options.
func OptionsFromConfig(cfg config.RPCConfig) Options {
	return Options{
		Addr:           cfg.Addr,
		Token:          cfg.Token,
		RequireToken:   cfg.RequireToken,
		RateLimit:      ratelimiter.Config{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

// NewServer wires svc behind the JSON-RPC, stream, health and metrics
// endpoints. svc may be nil, in which case only health_check and the
// rpc.* introspection methods answer.
func NewServer(svc app.DaemonService, opts Options) (*Server, error) {
	opts.Token = strings.TrimSpace(opts.Token)
	if opts.RequireToken && opts.Token == "" {
		return nil, ErrTokenRequired
	}
	return newServerWithService(svc, opts), nil
}
