package cli

import (
	"errors"
	"io/fs"

	"docregistry/go-backend/internal/config"
	"docregistry/go-backend/internal/crypto"
	"docregistry/go-backend/internal/identity"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/internal/substrate"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfig       = "E002" // Config missing or invalid
	ErrCodeInvalidInput = "E003" // Bad hash, address, signature or wallet index
	ErrCodeNotFound     = "E004" // Document or file not found
	ErrCodeExists       = "E005" // Document already stored
	ErrCodeSigning      = "E006" // No wallet available for signing
	ErrCodeBatch        = "E007" // Batch arrays disagree in length
	ErrCodeTimeout      = "E008" // Gave up waiting for a commit
)

var errLoadConfig = errors.New("load config")

func errorCode(err error) string {
	switch {
	case errors.Is(err, errLoadConfig),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, identity.ErrInvalidSeed),
		errors.Is(err, identity.ErrInvalidPath),
		errors.Is(err, identity.ErrInvalidCount):
		return ErrCodeConfig
	case errors.Is(err, crypto.ErrInvalidHashFormat),
		errors.Is(err, crypto.ErrInvalidAddress),
		errors.Is(err, crypto.ErrMalformedSignature),
		errors.Is(err, identity.ErrIdentityIndex),
		errors.Is(err, registry.ErrTimestampOutOfRange):
		return ErrCodeInvalidInput
	case errors.Is(err, registry.ErrDocumentNotFound),
		errors.Is(err, registry.ErrIndexOutOfRange),
		errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case errors.Is(err, registry.ErrDocumentAlreadyExists):
		return ErrCodeExists
	case errors.Is(err, crypto.ErrSigningUnavailable):
		return ErrCodeSigning
	case errors.Is(err, registry.ErrArrayLengthMismatch):
		return ErrCodeBatch
	case errors.Is(err, substrate.ErrWaitAbandoned):
		return ErrCodeTimeout
	default:
		return ErrCodeGeneric
	}
}
