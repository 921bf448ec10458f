package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPermitKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSignWithdrawPermitRecoverable(t *testing.T) {
	vault := common.HexToAddress("0x9000000000000000000000000000000000000009")
	signer, err := NewPermitSigner(testPermitKey, 11155111, vault)
	require.NoError(t, err)

	hostToken := common.HexToAddress("0x1000000000000000000000000000000000000001")
	validiumToken := common.HexToAddress("0x2000000000000000000000000000000000000002")
	to := common.HexToAddress("0x4000000000000000000000000000000000000004")
	amount := big.NewInt(1_000_000)
	messageHash := common.HexToHash("0xbeef")

	permit, err := signer.SignWithdrawPermit(hostToken, validiumToken, to, amount, messageHash)
	require.NoError(t, err)

	sig, err := hexutil.Decode(permit)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.GreaterOrEqual(t, sig[64], byte(27))

	// Rebuild the typed data digest independently and recover the
	// signing address from it.
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Withdraw": {
				{Name: "l1Token", Type: "address"},
				{Name: "l2Token", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "messageHash", Type: "bytes32"},
			},
		},
		PrimaryType: "Withdraw",
		Domain: apitypes.TypedDataDomain{
			Name:              "FastWithdrawVault",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(11155111),
			VerifyingContract: vault.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"l1Token":     hostToken.Hex(),
			"l2Token":     validiumToken.Hex(),
			"to":          to.Hex(),
			"amount":      (*math.HexOrDecimal256)(amount),
			"messageHash": messageHash.Hex(),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)

	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignWithdrawPermitBindsAmount(t *testing.T) {
	vault := common.HexToAddress("0x9000000000000000000000000000000000000009")
	signer, err := NewPermitSigner(testPermitKey, 1, vault)
	require.NoError(t, err)

	hostToken := common.HexToAddress("0x1000000000000000000000000000000000000001")
	validiumToken := common.HexToAddress("0x2000000000000000000000000000000000000002")
	to := common.HexToAddress("0x4000000000000000000000000000000000000004")
	messageHash := common.HexToHash("0xbeef")

	a, err := signer.SignWithdrawPermit(hostToken, validiumToken, to, big.NewInt(1), messageHash)
	require.NoError(t, err)
	b, err := signer.SignWithdrawPermit(hostToken, validiumToken, to, big.NewInt(2), messageHash)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewPermitSignerRejectsBadKey(t *testing.T) {
	_, err := NewPermitSigner("not-a-key", 1, common.Address{})
	assert.Error(t, err)
}
