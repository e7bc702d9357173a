package identity

import (
	"crypto/ecdsa"
	"log/slog"

	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultMnemonic is the well-known development phrase used when none is configured.
	DefaultMnemonic = "test test test test test test test test test test test junk"
	DefaultCount    = 10
	PathTemplate    = "m/44'/60'/0'/0/%d"
)

// Identity is one derived signing key. It is immutable after derivation.
type Identity struct {
	Index      int
	Address    common.Address
	Path       string
	PrivateKey *ecdsa.PrivateKey
}

func (i Identity) Info() models.IdentityInfo {
	return models.IdentityInfo{
		Index:   i.Index,
		Address: i.Address,
		Path:    i.Path,
	}
}

// LogValue keeps the private key out of structured logs.
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", i.Index),
		slog.String("address", i.Address.Hex()),
		slog.String("path", i.Path),
	)
}
