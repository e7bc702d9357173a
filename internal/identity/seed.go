package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidSeed  = errors.New("invalid seed phrase")
	ErrInvalidPath  = errors.New("invalid derivation path")
	ErrInvalidCount = errors.New("invalid identity count")
)

// NormalizeMnemonic collapses runs of whitespace. An empty phrase selects
// DefaultMnemonic.
func NormalizeMnemonic(mnemonic string) string {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return DefaultMnemonic
	}
	return strings.Join(words, " ")
}

func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

// seedFromMnemonic checks word list and checksum before stretching the
// phrase into the 64-byte BIP-39 seed. The passphrase is always empty.
func seedFromMnemonic(mnemonic string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: checksum or word list mismatch (%d words)", ErrInvalidSeed, len(strings.Fields(mnemonic)))
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return seed, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
