package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignedMessagePrefix is the EIP-191 personal-sign domain separator.
const SignedMessagePrefix = "\x19Ethereum Signed Message:\n"

const (
	SignatureLength  = ethcrypto.SignatureLength
	recoveryIDOffset = ethcrypto.RecoveryIDOffset
	legacyVOffset    = 27
)

var (
	ErrSigningUnavailable = errors.New("signing unavailable: no active identity")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrInvalidAddress     = errors.New("invalid address")

	errRecoveryFailed = errors.New("public key recovery failed")
)

type MalformedSignatureError struct {
	Length int
	Reason string
}

func (e *MalformedSignatureError) Error() string {
	if e == nil {
		return ErrMalformedSignature.Error()
	}
	return fmt.Sprintf("malformed signature (%d bytes): %s", e.Length, e.Reason)
}

func (e *MalformedSignatureError) Unwrap() error {
	return ErrMalformedSignature
}

// SignedMessage builds the exact byte sequence that is signed for a document
// hash: prefix, decimal byte length of the hash, raw hash bytes.
func SignedMessage(hash common.Hash) []byte {
	msg := make([]byte, 0, len(SignedMessagePrefix)+2+common.HashLength)
	msg = append(msg, SignedMessagePrefix...)
	msg = strconv.AppendInt(msg, int64(len(hash)), 10)
	return append(msg, hash[:]...)
}

// SignedMessageDigest is the Keccak-256 digest handed to ECDSA.
func SignedMessageDigest(hash common.Hash) common.Hash {
	return ethcrypto.Keccak256Hash(SignedMessage(hash))
}

// Sign produces a 65-byte r||s||v signature with v in {27, 28}.
func Sign(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	if key == nil {
		return nil, ErrSigningUnavailable
	}
	digest := SignedMessageDigest(hash)
	sig, err := ethcrypto.Sign(digest[:], key)
	if err != nil {
		return nil, fmt.Errorf("sign document hash: %w", err)
	}
	sig[recoveryIDOffset] += legacyVOffset
	return sig, nil
}

// RecoverSigner returns the address whose key produced sig over hash.
// Malformed input yields *MalformedSignatureError; a well-formed signature
// that recovers to no key yields an unexported recovery error.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	normalized, err := normalizeSignature(sig)
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !ethcrypto.ValidateSignatureValues(normalized[recoveryIDOffset], r, s, true) {
		return common.Address{}, errRecoveryFailed
	}
	digest := SignedMessageDigest(hash)
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, errRecoveryFailed
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether sig over hash recovers to claimed. A signature that
// is well-formed but does not match is a false result, not an error.
func Verify(hash common.Hash, claimed common.Address, sig []byte) (bool, error) {
	recovered, err := RecoverSigner(hash, sig)
	if err != nil {
		if errors.Is(err, ErrMalformedSignature) {
			return false, err
		}
		return false, nil
	}
	return recovered == claimed, nil
}

// ParseSignature decodes the text form. "" is the unsigned value.
func ParseSignature(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	raw, err := hexutil.Decode(text)
	if err != nil {
		return nil, &MalformedSignatureError{Length: len(text), Reason: err.Error()}
	}
	return raw, nil
}

func FormatSignature(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return hexutil.Encode(sig)
}

// ParseAddress accepts 40 hex characters with or without 0x, in any case.
func ParseAddress(text string) (common.Address, error) {
	text = strings.TrimSpace(text)
	if !common.IsHexAddress(text) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}
	return common.HexToAddress(text), nil
}

func normalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, &MalformedSignatureError{Length: len(sig), Reason: fmt.Sprintf("expected %d bytes", SignatureLength)}
	}
	out := append([]byte(nil), sig...)
	switch v := out[recoveryIDOffset]; v {
	case 0, 1:
	case legacyVOffset, legacyVOffset + 1:
		out[recoveryIDOffset] = v - legacyVOffset
	default:
		return nil, &MalformedSignatureError{Length: len(sig), Reason: fmt.Sprintf("invalid recovery id %d", v)}
	}
	return out, nil
}
