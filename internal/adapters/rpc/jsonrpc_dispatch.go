package rpc

import (
	"context"
	"encoding/json"
	"slices"
)

// rpcMethods is what rpc.capabilities reports. Keep it in step with the
// dispatch switches.
var rpcMethods = []string{
	"health_check",
	"rpc.version",
	"rpc.capabilities",
	"document.hash",
	"document.normalize_hash",
	"document.sign",
	"document.sign_and_store",
	"signature.verify",
	"wallet.list",
	"wallet.activate",
	"wallet.deactivate",
	"wallet.active",
	"registry.store",
	"registry.store_batch",
	"registry.await",
	"registry.is_stored",
	"registry.get",
	"registry.count",
	"registry.hash_at",
	"registry.lookup",
	"registry.verify",
	"registry.list",
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "rpc.version":
		return rpcVersionInfo(), nil
	case "rpc.capabilities":
		methods := slices.Clone(rpcMethods)
		slices.Sort(methods)
		return map[string]any{"methods": methods}, nil
	}
	if !slices.Contains(rpcMethods, method) {
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
	}
	if s.service == nil {
		return nil, &rpcError{Code: codeServiceNotInitialized, Message: "registry service is not initialized"}
	}
	if result, rpcErr, ok := s.dispatchDocumentRPC(method, rawParams); ok {
		return result, rpcErr
	}
	if result, rpcErr, ok := s.dispatchWalletRPC(method, rawParams); ok {
		return result, rpcErr
	}
	if result, rpcErr, ok := s.dispatchRegistryWriteRPC(ctx, method, rawParams); ok {
		return result, rpcErr
	}
	if result, rpcErr, ok := s.dispatchRegistryReadRPC(ctx, method, rawParams); ok {
		return result, rpcErr
	}
	return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
}
