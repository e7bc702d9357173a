package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type rpcRequest struct {
	JSONRPC    string          `json:"jsonrpc"`
	ID         json.RawMessage `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params"`
	APIVersion *int            `json:"api_version,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

	rpcRequestIDHeader = "X-DocReg-Request-ID"
	maxRequestIDLength = 128
	unknownMethodLabel = "unknown"
	rpcOutcomeOK       = "ok"
	rpcOutcomeError    = "error"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorizeRPC(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := s.extractRPCToken(r)
	clientKey := rpcRateLimitKey(r, token)
	if !s.rpcLimiter.Allow(clientKey, time.Now()) {
		s.metrics().RPCRateLimited()
		s.logger.Warn("rpc rate limited", "client_key", clientKey)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := requestID(r.Header.Get(rpcRequestIDHeader), req.ID)
	w.Header().Set(rpcRequestIDHeader, reqID)
	if rpcErr := validateRPCAPIVersion(req.APIVersion); rpcErr != nil {
		writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}

	var cacheKey, reqHash string
	if _, ok := idempotentMethods[req.Method]; ok {
		cacheKey = rpcIdempotencyKey(r.Header.Get(rpcIdempotencyHeader), token)
	}
	if cacheKey != "" {
		reqHash = rpcRequestHash(req)
		cached, hit, conflict := s.idempotency.get(cacheKey, reqHash, time.Now())
		if conflict {
			writeRPC(w, rpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &rpcError{Code: codeIdempotencyConflict, Message: "idempotency key was used for a different request"},
			})
			return
		}
		if hit {
			s.logger.Info("rpc idempotent replay", "request_id", reqID, "method", req.Method)
			cached.ID = req.ID
			writeRPC(w, cached)
			return
		}
	}

	started := time.Now()
	s.logger.Debug("rpc request", "request_id", reqID, "method", req.Method, "client_key", clientKey)

	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	label := req.Method
	if rpcErr != nil && rpcErr.Code == codeMethodNotFound {
		label = unknownMethodLabel
	}
	if rpcErr != nil {
		s.metrics().RPCRequest(label, rpcOutcomeError)
		s.logger.Warn("rpc failed",
			"request_id", reqID,
			"method", req.Method,
			"rpc_code", rpcErr.Code,
			"latency_ms", time.Since(started).Milliseconds(),
		)
	} else {
		s.metrics().RPCRequest(label, rpcOutcomeOK)
		s.logger.Info("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	resp := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	}
	if cacheKey != "" && rpcErr == nil {
		s.idempotency.set(cacheKey, reqHash, resp, time.Now())
	}
	writeRPC(w, resp)
}

// requestID prefers the caller's correlation header and falls back to the
// JSON-RPC id.
func requestID(header string, id json.RawMessage) string {
	if v := sanitizeRequestID(header); v != "" {
		return v
	}
	if len(id) > 0 && string(id) != "null" {
		return "rpc." + sanitizeRequestID(string(id))
	}
	return fmt.Sprintf("rpc_%d", time.Now().UnixNano())
}

func sanitizeRequestID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxRequestIDLength {
		raw = raw[:maxRequestIDLength]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, raw)
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
	})
}
