package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signature is the raw signature byte string stored with a record. Its text
// form is 0x-prefixed hex; an empty signature encodes as "".
type Signature []byte

func (s Signature) String() string {
	if len(s) == 0 {
		return ""
	}
	return hexutil.Encode(s)
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Signature) UnmarshalText(input []byte) error {
	raw := strings.TrimSpace(string(input))
	if raw == "" || raw == "0x" || raw == "0X" {
		*s = nil
		return nil
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

type DocumentRecord struct {
	Hash      common.Hash    `json:"hash"`
	Signer    common.Address `json:"signer"`
	Timestamp uint64         `json:"timestamp"`
	Signature Signature      `json:"signature"`
}

func (r DocumentRecord) Clone() DocumentRecord {
	r.Signature = append(Signature(nil), r.Signature...)
	return r
}

type IdentityInfo struct {
	Index   int            `json:"index"`
	Address common.Address `json:"address"`
	Path    string         `json:"path"`
	Active  bool           `json:"active"`
}

const (
	VerificationNotFound = "not_found"
	VerificationInvalid  = "invalid"
	VerificationValid    = "valid"
)

type VerificationResult struct {
	Status        string          `json:"status"`
	Hash          common.Hash     `json:"hash"`
	ClaimedSigner common.Address  `json:"claimed_signer"`
	Record        *DocumentRecord `json:"record,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

func (v VerificationResult) Found() bool {
	return v.Status != VerificationNotFound
}

func (v VerificationResult) Valid() bool {
	return v.Status == VerificationValid
}

type ListEntry struct {
	Index    uint64          `json:"index"`
	Hash     *common.Hash    `json:"hash,omitempty"`
	Record   *DocumentRecord `json:"record,omitempty"`
	Verified *bool           `json:"verified,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type DocumentListing struct {
	Count   uint64      `json:"count"`
	Entries []ListEntry `json:"entries"`
	Failed  int         `json:"failed"`
}

// Records returns the successfully fetched records in index order.
func (l DocumentListing) Records() []DocumentRecord {
	out := make([]DocumentRecord, 0, len(l.Entries))
	for _, entry := range l.Entries {
		if entry.Record != nil {
			out = append(out, *entry.Record)
		}
	}
	return out
}

type StoreRequest struct {
	Hash      string `json:"hash"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Timestamp uint64 `json:"timestamp,omitempty"`
}

type StoreBatchRequest struct {
	Hashes     []string `json:"hashes"`
	Signatures []string `json:"signatures"`
	Signer     string   `json:"signer"`
	Timestamp  uint64   `json:"timestamp,omitempty"`
}

type PendingStore struct {
	PendingID string        `json:"pending_id"`
	Hashes    []common.Hash `json:"hashes"`
}

type StoreReceipt struct {
	PendingID   string        `json:"pending_id"`
	Hashes      []common.Hash `json:"hashes"`
	FirstIndex  uint64        `json:"first_index"`
	CommittedAt time.Time     `json:"committed_at"`
}

type DocumentStoredEvent struct {
	Hash      common.Hash    `json:"hash"`
	Signer    common.Address `json:"signer"`
	Timestamp uint64         `json:"timestamp"`
	Index     uint64         `json:"index"`
}
