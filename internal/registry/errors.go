package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDocumentAlreadyExists = errors.New("document already exists")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrArrayLengthMismatch   = errors.New("array length mismatch")
	ErrIndexOutOfRange       = errors.New("index out of range")
	ErrTimestampOutOfRange   = errors.New("timestamp out of range")
)

type DocumentAlreadyExistsError struct {
	Hash common.Hash
}

func (e *DocumentAlreadyExistsError) Error() string {
	return fmt.Sprintf("document already exists: %s", e.Hash.Hex())
}

func (e *DocumentAlreadyExistsError) Unwrap() error { return ErrDocumentAlreadyExists }

type DocumentNotFoundError struct {
	Hash common.Hash
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.Hash.Hex())
}

func (e *DocumentNotFoundError) Unwrap() error { return ErrDocumentNotFound }

type ArrayLengthMismatchError struct {
	Hashes     int
	Signatures int
}

func (e *ArrayLengthMismatchError) Error() string {
	return fmt.Sprintf("array length mismatch: %d hashes, %d signatures", e.Hashes, e.Signatures)
}

func (e *ArrayLengthMismatchError) Unwrap() error { return ErrArrayLengthMismatch }

type IndexOutOfRangeError struct {
	Index uint64
	Count uint64
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range (count %d)", e.Index, e.Count)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrIndexOutOfRange }

// RejectReason classifies a store failure for logs and metrics.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDocumentAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrArrayLengthMismatch):
		return "length_mismatch"
	default:
		return "error"
	}
}
