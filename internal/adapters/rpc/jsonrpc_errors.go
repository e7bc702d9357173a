package rpc

import (
	"errors"

	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/internal/substrate"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	codeServiceError          = -32000
	codeDocumentExists        = -32010
	codeDocumentNotFound      = -32011
	codeArrayLengthMismatch   = -32012
	codeIndexOutOfRange       = -32013
	codeSigningUnavailable    = -32020
	codeMalformedSignature    = -32021
	codeUnknownPending        = -32030
	codeWaitAbandoned         = -32031
	codeIdempotencyConflict   = -32040
	codeVersionUnsupported    = -32080
	codeVersionDeprecated     = -32081
	codeServiceNotInitialized = -32099
)

var errInvalidParams = errors.New("invalid params")

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

// mapServiceError gives every registry error class a stable code. Typed
// errors carry their fields in data.
func mapServiceError(err error) *rpcError {
	var (
		exists    *registry.DocumentAlreadyExistsError
		notFound  *registry.DocumentNotFoundError
		mismatch  *registry.ArrayLengthMismatchError
		outOfRng  *registry.IndexOutOfRangeError
		malformed *crypto.MalformedSignatureError
	)
	switch {
	case errors.As(err, &exists):
		return &rpcError{Code: codeDocumentExists, Message: err.Error(), Data: map[string]any{"hash": exists.Hash}}
	case errors.Is(err, registry.ErrDocumentAlreadyExists):
		return &rpcError{Code: codeDocumentExists, Message: err.Error()}
	case errors.As(err, &notFound):
		return &rpcError{Code: codeDocumentNotFound, Message: err.Error(), Data: map[string]any{"hash": notFound.Hash}}
	case errors.Is(err, registry.ErrDocumentNotFound):
		return &rpcError{Code: codeDocumentNotFound, Message: err.Error()}
	case errors.As(err, &mismatch):
		return &rpcError{Code: codeArrayLengthMismatch, Message: err.Error(), Data: map[string]any{
			"hashes":     mismatch.Hashes,
			"signatures": mismatch.Signatures,
		}}
	case errors.As(err, &outOfRng):
		return &rpcError{Code: codeIndexOutOfRange, Message: err.Error(), Data: map[string]any{
			"index": outOfRng.Index,
			"count": outOfRng.Count,
		}}
	case errors.Is(err, crypto.ErrSigningUnavailable):
		return &rpcError{Code: codeSigningUnavailable, Message: err.Error()}
	case errors.As(err, &malformed):
		return &rpcError{Code: codeMalformedSignature, Message: err.Error(), Data: map[string]any{"length": malformed.Length}}
	case errors.Is(err, crypto.ErrMalformedSignature):
		return &rpcError{Code: codeMalformedSignature, Message: err.Error()}
	case errors.Is(err, substrate.ErrUnknownPending):
		return &rpcError{Code: codeUnknownPending, Message: err.Error()}
	case errors.Is(err, substrate.ErrWaitAbandoned):
		return &rpcError{Code: codeWaitAbandoned, Message: err.Error()}
	case errors.Is(err, crypto.ErrInvalidHashFormat),
		errors.Is(err, crypto.ErrInvalidAddress),
		errors.Is(err, identity.ErrIdentityIndex),
		errors.Is(err, registry.ErrTimestampOutOfRange),
		errors.Is(err, errInvalidParams):
		return &rpcError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &rpcError{Code: codeServiceError, Message: err.Error()}
	}
}
