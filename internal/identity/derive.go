package identity

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	masterKeyHMACKey = "Bitcoin seed"
	hardenedOffset   = uint32(0x80000000)
)

var errUnusableChild = errors.New("derived key out of range")

// DeriveIdentities derives count identities from mnemonic on PathTemplate.
// Either all identities are returned or none.
func DeriveIdentities(mnemonic string, count int) ([]Identity, error) {
	return DeriveIdentitiesWithTemplate(mnemonic, PathTemplate, count)
}

// DeriveIdentitiesWithTemplate is DeriveIdentities with a caller supplied
// template; the template must contain exactly one %d for the index.
func DeriveIdentitiesWithTemplate(mnemonic, template string, count int) ([]Identity, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	if strings.Count(template, "%d") != 1 {
		return nil, fmt.Errorf("%w: template %q needs exactly one %%d", ErrInvalidPath, template)
	}
	seed, err := seedFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)

	master, err := newMasterKey(seed)
	if err != nil {
		return nil, err
	}

	out := make([]Identity, 0, count)
	for i := 0; i < count; i++ {
		path := fmt.Sprintf(template, i)
		id, err := deriveAt(master, path)
		if err != nil {
			return nil, err
		}
		id.Index = i
		out = append(out, id)
	}
	return out, nil
}

func deriveAt(master extendedKey, path string) (Identity, error) {
	parsed, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
	}
	key := master
	for _, component := range parsed {
		key, err = key.child(component)
		if err != nil {
			return Identity{}, fmt.Errorf("derive %s: %w", path, err)
		}
	}
	priv, err := ethcrypto.ToECDSA(key.key[:])
	if err != nil {
		return Identity{}, fmt.Errorf("derive %s: %w", path, err)
	}
	return Identity{
		Address:    ethcrypto.PubkeyToAddress(priv.PublicKey),
		Path:       path,
		PrivateKey: priv,
	}, nil
}

// extendedKey is a BIP-32 private node: secret scalar plus chain code.
type extendedKey struct {
	key       [32]byte
	chainCode [32]byte
}

func newMasterKey(seed []byte) (extendedKey, error) {
	mac := hmac.New(sha512.New, []byte(masterKeyHMACKey))
	mac.Write(seed)
	sum := mac.Sum(nil)
	defer zeroBytes(sum)

	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(sum[:32]); overflow || k.IsZero() {
		return extendedKey{}, fmt.Errorf("%w: unusable master key", ErrInvalidSeed)
	}
	var out extendedKey
	out.key = k.Bytes()
	copy(out.chainCode[:], sum[32:])
	return out, nil
}

// child implements CKDpriv. Hardened indices commit to the private key,
// normal ones to the compressed public key.
func (k extendedKey) child(index uint32) (extendedKey, error) {
	var data []byte
	if index >= hardenedOffset {
		data = make([]byte, 0, 1+32+4)
		data = append(data, 0x00)
		data = append(data, k.key[:]...)
	} else {
		pub := secp256k1.PrivKeyFromBytes(k.key[:]).PubKey().SerializeCompressed()
		data = make([]byte, 0, len(pub)+4)
		data = append(data, pub...)
	}
	data = binary.BigEndian.AppendUint32(data, index)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)
	zeroBytes(data)
	defer zeroBytes(sum)

	var tweak secp256k1.ModNScalar
	if overflow := tweak.SetByteSlice(sum[:32]); overflow {
		return extendedKey{}, errUnusableChild
	}
	var parent secp256k1.ModNScalar
	parent.SetBytes(&k.key)
	tweak.Add(&parent)
	if tweak.IsZero() {
		return extendedKey{}, errUnusableChild
	}

	var out extendedKey
	out.key = tweak.Bytes()
	copy(out.chainCode[:], sum[32:])
	return out, nil
}
