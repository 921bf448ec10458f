package chain

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// DecodeRevertReason extracts a human readable reason from a failed
// eth_call. The second return is false when the error carries no revert
// data (a provider or transport problem rather than a contract revert).
//
// Known custom errors are matched on their 4-byte selector;
// Error(string) reverts are ABI-decoded. Anything else is reported as
// the raw error text with ok=true so callers can apply their
// conservative default.
func DecodeRevertReason(err error) (reason string, ok bool) {
	data, found := revertData(err)
	if !found {
		return err.Error(), false
	}

	if len(data) >= 4 && bytes.Equal(data[:4], alreadyProcessedSelector) {
		return ReasonAlreadyProcessed, true
	}

	if len(data) > 4 && bytes.Equal(data[:4], errorStringSelector) {
		if s, decErr := abi.UnpackRevert(data); decErr == nil {
			return s, true
		}
	}

	return err.Error(), true
}

// revertData pulls the raw revert payload out of an RPC error.
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}

	switch payload := de.ErrorData().(type) {
	case string:
		data, decErr := hexutil.Decode(payload)
		if decErr != nil || len(data) == 0 {
			return nil, false
		}
		return data, true
	case []byte:
		if len(payload) == 0 {
			return nil, false
		}
		return payload, true
	default:
		return nil, false
	}
}
