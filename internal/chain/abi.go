package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract fragments the relayer interacts with: the validium-side
// ERC20 gateway and message queue events, and the host-side vault claim
// call with its known custom error.

const gatewayABIJSON = `[
	{"type":"event","name":"WithdrawERC20","anonymous":false,"inputs":[
		{"name":"hostToken","type":"address","indexed":true},
		{"name":"validiumToken","type":"address","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"payload","type":"bytes","indexed":false}
	]}
]`

const queueABIJSON = `[
	{"type":"event","name":"AppendMessage","anonymous":false,"inputs":[
		{"name":"index","type":"uint256","indexed":false},
		{"name":"messageHash","type":"bytes32","indexed":false}
	]}
]`

const vaultABIJSON = `[
	{"type":"function","name":"claimFastWithdraw","stateMutability":"nonpayable","inputs":[
		{"name":"l1Token","type":"address"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"messageHash","type":"bytes32"},
		{"name":"signature","type":"bytes"}
	],"outputs":[]}
]`

var (
	gatewayABI = mustABI(gatewayABIJSON)
	queueABI   = mustABI(queueABIJSON)
	vaultABI   = mustABI(vaultABIJSON)

	// WithdrawERC20Topic is the log topic of the gateway withdraw event.
	WithdrawERC20Topic = gatewayABI.Events["WithdrawERC20"].ID
	// AppendMessageTopic is the log topic of the message queue event.
	AppendMessageTopic = queueABI.Events["AppendMessage"].ID

	// alreadyProcessedSelector is the 4-byte selector of the vault's
	// ErrorWithdrawAlreadyProcessed() custom error.
	alreadyProcessedSelector = crypto.Keccak256([]byte(ReasonAlreadyProcessed))[:4]

	// errorStringSelector is the selector of the legacy Error(string)
	// revert encoding.
	errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}
)

// ReasonAlreadyProcessed is the decoded reason reported when the vault
// rejects a claim as already processed.
const ReasonAlreadyProcessed = "ErrorWithdrawAlreadyProcessed()"

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// PackClaim encodes the calldata of claimFastWithdraw.
func PackClaim(hostToken, to common.Address, amount *big.Int, messageHash common.Hash, signature []byte) ([]byte, error) {
	return vaultABI.Pack("claimFastWithdraw", hostToken, to, amount, messageHash, signature)
}
