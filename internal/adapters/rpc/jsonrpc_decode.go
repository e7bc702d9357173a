package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"docregistry/go-backend/internal/crypto"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultAwaitTimeout = 30 * time.Second
	maxAwaitTimeout     = 5 * time.Minute
)

// decodePositional splits array params. Absent, null, {} and [] all mean no
// arguments, so parameterless methods accept whatever clients send.
func decodePositional(raw json.RawMessage, minArgs, maxArgs int) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	var args []json.RawMessage
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil || len(obj) != 0 {
			return nil, errInvalidParams
		}
	default:
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return nil, errInvalidParams
		}
	}
	if len(args) < minArgs || len(args) > maxArgs {
		return nil, errInvalidParams
	}
	return args, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", errInvalidParams
	}
	return v, nil
}

func decodeHash(raw json.RawMessage) (common.Hash, error) {
	v, err := decodeString(raw)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.NormalizeHash(v)
}

func decodeHashes(raw json.RawMessage) ([]common.Hash, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errInvalidParams
	}
	out := make([]common.Hash, 0, len(values))
	for _, v := range values {
		h, err := crypto.NormalizeHash(v)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func decodeAddress(raw json.RawMessage) (common.Address, error) {
	v, err := decodeString(raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.ParseAddress(v)
}

// decodeSignature accepts "" or null as the unsigned value.
func decodeSignature(raw json.RawMessage) ([]byte, error) {
	if isNull(raw) {
		return nil, nil
	}
	v, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	return crypto.ParseSignature(v)
}

func decodeSignatures(raw json.RawMessage) ([][]byte, error) {
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errInvalidParams
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		sig, err := crypto.ParseSignature(v)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

func decodeBase64(raw json.RawMessage) ([]byte, error) {
	v, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, errInvalidParams
	}
	return data, nil
}

// decodeUint accepts a non-negative JSON integer, or a decimal string of one.
func decodeUint(raw json.RawMessage, bits int) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errInvalidParams
	}
	v, err := strconv.ParseUint(n.String(), 10, bits)
	if err != nil {
		return 0, errInvalidParams
	}
	return v, nil
}

// decodeTimestamp bounds timestamps to what every backend stores.
func decodeTimestamp(raw json.RawMessage) (uint64, error) {
	return decodeUint(raw, 63)
}

func decodeIndex(raw json.RawMessage) (int, error) {
	v, err := decodeUint(raw, 31)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, errInvalidParams
	}
	return v, nil
}

// optionalArg returns args[i] when present and not null.
func optionalArg(args []json.RawMessage, i int) (json.RawMessage, bool) {
	if i >= len(args) || isNull(args[i]) {
		return nil, false
	}
	return args[i], true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type storeBatchParams struct {
	Hashes     []common.Hash
	Signatures [][]byte
	Signer     common.Address
	Timestamp  uint64
}

// decodeStoreBatchParams accepts {hashes, signatures, signer, timestamp?}
// or the positional [hashes, signatures, signer, timestamp?].
func decodeStoreBatchParams(raw json.RawMessage) (storeBatchParams, error) {
	var fields struct {
		Hashes     json.RawMessage `json:"hashes"`
		Signatures json.RawMessage `json:"signatures"`
		Signer     json.RawMessage `json:"signer"`
		Timestamp  json.RawMessage `json:"timestamp"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return storeBatchParams{}, errInvalidParams
		}
	} else {
		args, err := decodePositional(raw, 3, 4)
		if err != nil {
			return storeBatchParams{}, err
		}
		fields.Hashes, fields.Signatures, fields.Signer = args[0], args[1], args[2]
		if ts, ok := optionalArg(args, 3); ok {
			fields.Timestamp = ts
		}
	}
	if fields.Hashes == nil || fields.Signatures == nil || fields.Signer == nil {
		return storeBatchParams{}, errInvalidParams
	}

	var out storeBatchParams
	var err error
	if out.Hashes, err = decodeHashes(fields.Hashes); err != nil {
		return storeBatchParams{}, err
	}
	if out.Signatures, err = decodeSignatures(fields.Signatures); err != nil {
		return storeBatchParams{}, err
	}
	if out.Signer, err = decodeAddress(fields.Signer); err != nil {
		return storeBatchParams{}, err
	}
	if len(fields.Timestamp) > 0 && !isNull(fields.Timestamp) {
		if out.Timestamp, err = decodeTimestamp(fields.Timestamp); err != nil {
			return storeBatchParams{}, err
		}
	}
	return out, nil
}

func decodeAwaitTimeout(args []json.RawMessage, i int) (time.Duration, error) {
	raw, ok := optionalArg(args, i)
	if !ok {
		return defaultAwaitTimeout, nil
	}
	ms, err := decodeUint(raw, 63)
	if err != nil {
		return 0, err
	}
	switch {
	case ms == 0:
		return defaultAwaitTimeout, nil
	case ms > uint64(maxAwaitTimeout/time.Millisecond):
		return maxAwaitTimeout, nil
	default:
		return time.Duration(ms) * time.Millisecond, nil
	}
}
