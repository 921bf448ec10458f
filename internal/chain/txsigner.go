package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClaimGasLimit is the fixed gas limit of a vault claim transaction.
const ClaimGasLimit = 200_000

// ClaimArgs are the arguments of one claimFastWithdraw call.
type ClaimArgs struct {
	HostToken   common.Address
	To          common.Address
	Amount      *big.Int
	MessageHash common.Hash
	Signature   []byte
}

// TxSigner builds and signs host-chain claim transactions with the
// transaction-sending key.
type TxSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	vault   common.Address
}

// NewTxSigner parses the sending key and binds the signer to the host
// chain id and vault address.
func NewTxSigner(privateKeyHex string, chainID *big.Int, vault common.Address) (*TxSigner, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse host signer key: %w", err)
	}
	return &TxSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		vault:   vault,
	}, nil
}

// Address returns the sending account address.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// Vault returns the claim target contract address.
func (s *TxSigner) Vault() common.Address {
	return s.vault
}

// ClaimCallData encodes the claim calldata, also used for simulation.
func (s *TxSigner) ClaimCallData(args ClaimArgs) ([]byte, error) {
	return PackClaim(args.HostToken, args.To, args.Amount, args.MessageHash, args.Signature)
}

// SignClaim builds and signs the claim transaction. The returned
// transaction carries its final hash, so callers can persist a record
// before broadcasting.
func (s *TxSigner) SignClaim(nonce uint64, gasPrice *big.Int, args ClaimArgs) (*types.Transaction, error) {
	data, err := s.ClaimCallData(args)
	if err != nil {
		return nil, fmt.Errorf("pack claim calldata: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.vault,
		Gas:      ClaimGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign claim transaction: %w", err)
	}
	return signed, nil
}
