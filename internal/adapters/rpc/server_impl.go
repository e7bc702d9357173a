package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docregistry/go-backend/internal/app"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/platform/ratelimiter"
)

const (
	DefaultRPCAddr = "127.0.0.1:8787"

	rpcTokenHeader  = "X-DocReg-RPC-Token"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	httpServer     *http.Server
	service        app.DaemonService
	logger         *slog.Logger
	rpcToken       string
	requireRPC     bool
	allowedOrigins map[string]struct{}
	rpcLimiter     *ratelimiter.MapLimiter
	streams        *rpcStreamLimiter
	idempotency    *rpcIdempotencyCache
}

func newServerWithService(svc app.DaemonService, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultRPCAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins[o] = struct{}{}
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		service:        svc,
		logger:         opts.Logger,
		rpcToken:       opts.Token,
		requireRPC:     opts.RequireToken,
		allowedOrigins: origins,
		rpcLimiter:     ratelimiter.New(opts.RateLimit),
		streams:        newRPCStreamLimiter(opts.Streams),
		idempotency:    newRPCIdempotencyCache(),
	}
	if s.rpcToken == "" {
		s.logger.Warn("rpc token is not set; RPC auth disabled", "addr", opts.Addr)
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/rpc/stream", s.handleRPCStream)
	return s
}

// Handler exposes the routed endpoints, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx ends, then shuts the listener down and closes the
// service.
func (s *Server) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "addr", s.httpServer.Addr)
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := s.httpServer.Shutdown(shutdownCtx)
		serveErr := <-errCh
		return errors.Join(shutdownErr, serveErr, s.closeService())
	case err := <-errCh:
		return errors.Join(err, s.closeService())
	}
}

// Close releases the service without serving. Run does this itself on exit.
func (s *Server) Close() error {
	return s.closeService()
}

func (s *Server) closeService() error {
	if s.service == nil {
		return nil
	}
	return s.service.Close()
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	s.handleRPC(w, r)
}

func (s *Server) HandleRPCStream(w http.ResponseWriter, r *http.Request) {
	s.handleRPCStream(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRPC(w, r) {
		return
	}
	s.metrics().Handler().ServeHTTP(w, r)
}

func (s *Server) metrics() *metrics.Metrics {
	if s.service == nil {
		return nil
	}
	return s.service.Metrics()
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin != "" && !s.isAllowedOrigin(origin) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return false
	}
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+rpcTokenHeader+", "+rpcIdempotencyHeader+", "+rpcRequestIDHeader)
	return true
}

func (s *Server) authorizeRPC(w http.ResponseWriter, r *http.Request) bool {
	if s.rpcToken == "" && !s.requireRPC {
		return true
	}
	token := s.extractRPCToken(r)
	if token != s.rpcToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) extractRPCToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get(rpcTokenHeader))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// isAllowedOrigin accepts loopback origins and any configured origin.
func (s *Server) isAllowedOrigin(raw string) bool {
	if _, ok := s.allowedOrigins[strings.TrimRight(raw, "/")]; ok {
		return true
	}
	if raw == "null" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
