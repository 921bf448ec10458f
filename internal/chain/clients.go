package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ValidiumClient is the source-chain provider surface the relayer
// depends on.
type ValidiumClient interface {
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterWithdrawERC20 fetches the gateway's WithdrawERC20 events in
	// the inclusive block range.
	FilterWithdrawERC20(ctx context.Context, fromBlock, toBlock uint64) ([]WithdrawERC20Event, error)

	// TransactionReceipt returns ethereum.NotFound when the transaction
	// is unknown to the node (e.g. after a reorg).
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// HostClient is the destination-chain provider surface the relayer
// depends on.
type HostClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
}

type validiumClient struct {
	ec      *ethclient.Client
	gateway common.Address
}

// DialValidium connects to the validium RPC endpoint and scopes event
// queries to the given gateway contract.
func DialValidium(rpcURL string, gateway common.Address) (ValidiumClient, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial validium endpoint: %w", err)
	}
	return &validiumClient{ec: ec, gateway: gateway}, nil
}

func (c *validiumClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

func (c *validiumClient) FilterWithdrawERC20(ctx context.Context, fromBlock, toBlock uint64) ([]WithdrawERC20Event, error) {
	logs, err := c.ec.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.gateway},
		Topics:    [][]common.Hash{{WithdrawERC20Topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter WithdrawERC20 logs: %w", err)
	}

	events := make([]WithdrawERC20Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := ParseWithdrawERC20(lg)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (c *validiumClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ec.TransactionReceipt(ctx, txHash)
}

type hostClient struct {
	ec *ethclient.Client
}

// DialHost connects to the host RPC endpoint.
func DialHost(rpcURL string) (HostClient, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial host endpoint: %w", err)
	}
	return &hostClient{ec: ec}, nil
}

func (c *hostClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ec.ChainID(ctx)
}

func (c *hostClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ec.PendingNonceAt(ctx, account)
}

func (c *hostClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ec.SuggestGasPrice(ctx)
}

func (c *hostClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.ec.CallContract(ctx, msg, nil)
}

func (c *hostClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.ec.SendTransaction(ctx, tx)
}

func (c *hostClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ec.TransactionReceipt(ctx, txHash)
}

func (c *hostClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	return c.ec.TransactionByHash(ctx, txHash)
}
