package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/composition/daemonserver"
	"docregistry/go-backend/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address override")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-DocReg-RPC-Token (optional)")
	logLevel := flag.String("log-level", "", "Log level override: debug | info | warn | error")
	flag.Parse()
	if *showVersion {
		fmt.Printf("docregistry-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("docregistry-daemon config: %v", err)
	}
	if *rpcAddr != "" {
		cfg.RPC.Addr = *rpcAddr
	}
	if *rpcToken != "" {
		cfg.RPC.Token = *rpcToken
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("docregistry-daemon config: %v", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := daemonserver.NewRPCServer(cfg, logger)
	if err != nil {
		log.Fatalf("docregistry-daemon failed to initialize: %v", err)
	}

	logger.Info("docregistry-daemon starting", "version", version, "addr", srv.Addr(), "backend", cfg.Registry.Backend)
	if err := srv.Run(ctx); err != nil {
		logger.Error("docregistry-daemon failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("docregistry-daemon stopped")
}
