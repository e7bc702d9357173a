package rpc

import (
	"encoding/json"
)

func callWithoutParams(rawParams json.RawMessage, call func() (any, error)) (any, *rpcError) {
	if _, err := decodePositional(rawParams, 0, 0); err != nil {
		return nil, rpcInvalidParams()
	}
	result, err := call()
	if err != nil {
		return nil, mapServiceError(err)
	}
	return result, nil
}

// callWithArgs decodes between minArgs and maxArgs positional params. Errors
// from call, including argument decoding, go through mapServiceError.
func callWithArgs(rawParams json.RawMessage, minArgs, maxArgs int, call func(args []json.RawMessage) (any, error)) (any, *rpcError) {
	args, err := decodePositional(rawParams, minArgs, maxArgs)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	result, err := call(args)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return result, nil
}

func callWithHashParam(rawParams json.RawMessage, call func(hash string) (any, error)) (any, *rpcError) {
	return callWithArgs(rawParams, 1, 1, func(args []json.RawMessage) (any, error) {
		h, err := decodeString(args[0])
		if err != nil {
			return nil, err
		}
		return call(h)
	})
}
