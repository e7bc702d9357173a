package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HashHexLength is the number of hex characters in a canonical hash body.
const HashHexLength = 2 * common.HashLength

var ErrInvalidHashFormat = errors.New("invalid hash format")

// HashDocument returns the SHA-256 digest of the full document content.
func HashDocument(content []byte) common.Hash {
	return common.Hash(sha256.Sum256(content))
}

// HashReader digests everything readable from r. The result equals
// HashDocument over the same bytes.
func HashReader(r io.Reader) (common.Hash, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(h.Sum(nil)), nil
}

// HashFile digests the file content only; name and mtime never contribute.
func HashFile(path string) (common.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return common.Hash{}, err
	}
	defer f.Close()
	return HashReader(f)
}

// FormatHash renders the canonical text key: 0x followed by 64 lowercase hex characters.
func FormatHash(h common.Hash) string {
	return h.Hex()
}

// NormalizeHash turns user input into the canonical key. Whitespace, the 0x
// prefix and any non-hex characters are dropped; the remaining body must be
// exactly 64 hex characters.
func NormalizeHash(input string) (common.Hash, error) {
	body := strings.Join(strings.Fields(input), "")
	if len(body) >= 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		body = body[2:]
	}
	body = strings.Map(func(r rune) rune {
		if isHexRune(r) {
			return r
		}
		return -1
	}, body)
	if len(body) != HashHexLength {
		return common.Hash{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidHashFormat, HashHexLength, len(body))
	}
	return common.HexToHash("0x" + strings.ToLower(body)), nil
}

// NormalizeHashString is NormalizeHash rendered back to text.
func NormalizeHashString(input string) (string, error) {
	h, err := NormalizeHash(input)
	if err != nil {
		return "", err
	}
	return FormatHash(h), nil
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
