package rpc

import (
	"encoding/json"

	"docregistry/go-backend/internal/crypto"
)

func (s *Server) dispatchDocumentRPC(method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "document.hash":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			content, err := decodeBase64(args[0])
			if err != nil {
				return nil, err
			}
			return map[string]string{"hash": crypto.FormatHash(s.service.HashDocument(content))}, nil
		})
		return result, rpcErr, true
	case "document.normalize_hash":
		result, rpcErr := callWithHashParam(rawParams, func(text string) (any, error) {
			h, err := s.service.NormalizeHash(text)
			if err != nil {
				return nil, err
			}
			return map[string]string{"hash": crypto.FormatHash(h)}, nil
		})
		return result, rpcErr, true
	case "document.sign":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			hash, err := decodeHash(args[0])
			if err != nil {
				return nil, err
			}
			sig, signer, err := s.service.SignDocument(hash)
			if err != nil {
				return nil, err
			}
			return map[string]any{"hash": hash, "signer": signer, "signature": sig}, nil
		})
		return result, rpcErr, true
	case "signature.verify":
		result, rpcErr := callWithArgs(rawParams, 3, 3, func(args []json.RawMessage) (any, error) {
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
			ok, err := s.service.VerifySignature(hash, signer, sig)
			if err != nil {
				return nil, err
			}
			return map[string]bool{"valid": ok}, nil
		})
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}

func (s *Server) dispatchWalletRPC(method string, rawParams json.RawMessage) (any, *rpcError, bool) {
	switch method {
	case "wallet.list":
		result, rpcErr := callWithoutParams(rawParams, func() (any, error) {
			return map[string]any{"wallets": s.service.Wallets()}, nil
		})
		return result, rpcErr, true
	case "wallet.activate":
		result, rpcErr := callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
			index, err := decodeIndex(args[0])
			if err != nil {
				return nil, err
			}
			info, err := s.service.ActivateWallet(index)
			if err != nil {
				return nil, err
			}
			return map[string]any{"wallet": info}, nil
		})
		return result, rpcErr, true
	case "wallet.deactivate":
		result, rpcErr := callWithoutParams(rawParams, func() (any, error) {
			s.service.DeactivateWallet()
			return map[string]bool{"deactivated": true}, nil
		})
		return result, rpcErr, true
	case "wallet.active":
		result, rpcErr := callWithoutParams(rawParams, func() (any, error) {
			info, ok := s.service.ActiveWallet()
			if !ok {
				return map[string]any{"active": false}, nil
			}
			return map[string]any{"active": true, "wallet": info}, nil
		})
		return result, rpcErr, true
	default:
		return nil, nil, false
	}
}
