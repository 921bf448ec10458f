package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Permit signing domain constants, fixed by the vault contract.
const (
	permitDomainName    = "FastWithdrawVault"
	permitDomainVersion = "1"
)

// PermitSigner signs EIP-712 withdrawal authorization permits. It holds
// a dedicated key, distinct from the transaction-sending key.
type PermitSigner struct {
	key    *ecdsa.PrivateKey
	domain apitypes.TypedDataDomain
}

// NewPermitSigner builds a signer bound to the host chain id and the
// vault as verifying contract.
func NewPermitSigner(privateKeyHex string, hostChainID int64, vault common.Address) (*PermitSigner, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse permit signer key: %w", err)
	}
	return &PermitSigner{
		key: key,
		domain: apitypes.TypedDataDomain{
			Name:              permitDomainName,
			Version:           permitDomainVersion,
			ChainId:           math.NewHexOrDecimal256(hostChainID),
			VerifyingContract: vault.Hex(),
		},
	}, nil
}

// Address returns the permit signer's address.
func (s *PermitSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignWithdrawPermit signs the typed Withdraw structure binding the
// token pair, recipient, amount and message hash. The signature is
// returned 0x-hex encoded with the legacy V offset.
func (s *PermitSigner) SignWithdrawPermit(hostToken, validiumToken, to common.Address, amount *big.Int, messageHash common.Hash) (string, error) {
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
		Domain:      s.domain,
		Message: apitypes.TypedDataMessage{
			"l1Token":     hostToken.Hex(),
			"l2Token":     validiumToken.Hex(),
			"to":          to.Hex(),
			"amount":      (*math.HexOrDecimal256)(amount),
			"messageHash": messageHash.Hex(),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("hash withdraw permit: %w", err)
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("sign withdraw permit: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
