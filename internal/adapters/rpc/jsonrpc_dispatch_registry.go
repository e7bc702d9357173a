package rpc

import (
	"context"
	"encoding/json"
	"strings"
)

func (s *Server) dispatchRegistryWriteRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "registry.store":
		result, rpcErr := callWithArgs(rawParams, 3, 4, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			signer, err := decodeAddress(args[1])
			if err != nil {
				return nil, err
			}
			sig, err := decodeSignature(args[2])
			if err != nil {
				return nil, err
			}
			var ts uint64
			if raw, ok := optionalArg(args, 3); ok {
				if ts, err = decodeTimestamp(raw); err != nil {
					return nil, err
				}
			}
			return s.service.Store(ctx, hash, signer, sig, ts)
		})
		return result, rpcErr, true
	case "registry.store_batch":
		params, err := decodeStoreBatchParams(rawParams)
		if err != nil {
			return nil, mapServiceError(err), true
		}
		pending, err := s.service.StoreBatch(ctx, params.Hashes, params.Signatures, params.Signer, params.Timestamp)
		if err != nil {
			return nil, mapServiceError(err), true
		}
		return pending, nil, true
	case "document.sign_and_store":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			return s.service.SignAndStore(ctx, hash)
		})
		return result, rpcErr, true
	case "registry.await":
		result, rpcErr := callWithArgs(rawParams, 1, 2, func(args []json.RawMessage) (any, error) {
			pendingID, err := decodeString(args[0])
			if err != nil {
				return nil, err
			}
			pendingID = strings.TrimSpace(pendingID)
			if pendingID == "" {
				return nil, errInvalidParams
			}
			timeout, err := decodeAwaitTimeout(args, 1)
			if err != nil {
				return nil, err
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return s.service.Await(waitCtx, pendingID)
		})
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}

func (s *Server) dispatchRegistryReadRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "registry.is_stored":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			stored, err := s.service.IsStored(ctx, hash)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"stored": stored}, nil
		})
		return result, rpcErr, true
	case "registry.get":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			return s.service.Get(ctx, hash)
		})
		return result, rpcErr, true
	case "registry.count":
		result, rpcErr := callWithoutParams(rawParams, func() (any, error) {
			count, err := s.service.Count(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]uint64{"count": count}, nil
		})
		return result, rpcErr, true
	case "registry.hash_at":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			index, err := decodeUint(args[0], 64)
			if err != nil {
				return nil, err
			}
			hash, err := s.service.HashAtIndex(ctx, index)
			if err != nil {
				return nil, err
			}
			return map[string]any{"index": index, "hash": hash}, nil
		})
		return result, rpcErr, true
	case "registry.lookup":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			rec, found, err := s.service.Lookup(ctx, hash)
			if err != nil {
				return nil, err
			}
			if !found {
				return map[string]any{"found": false}, nil
			}
			return map[string]any{"found": true, "record": rec}, nil
		})
		return result, rpcErr, true
	case "registry.verify":
		result, rpcErr := callWithArgs(rawParams, 2, 2, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			claimed, err := decodeAddress(args[1])
			if err != nil {
				return nil, err
			}
			return s.service.LookupAndVerify(ctx, hash, claimed)
		})
		return result, rpcErr, true
	case "registry.list":
		result, rpcErr := callWithArgs(rawParams, 0, 1, func(args []json.RawMessage) (any, error) {
			verify := false
			if raw, ok := optionalArg(args, 0); ok {
				var err error
				if verify, err = decodeBool(raw); err != nil {
					return nil, err
				}
			}
			return s.service.ListAll(ctx, verify)
		})
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}
