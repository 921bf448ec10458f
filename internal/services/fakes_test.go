package services

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/db"
)

// Fixed addresses and keys shared by the service tests.
var (
	testVault         = common.HexToAddress("0x9000000000000000000000000000000000000009")
	testQueue         = common.HexToAddress("0xa00000000000000000000000000000000000000a")
	testGateway       = common.HexToAddress("0xb00000000000000000000000000000000000000b")
	testHostToken     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testValidiumToken = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testSender        = common.HexToAddress("0x3000000000000000000000000000000000000003")
	testRecipient     = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

const (
	testPermitKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testHostKey     = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testHostChainID = 11155111
)

func testConfig() *config.Config {
	return &config.Config{
		Contracts: config.ContractsConfig{
			HostChainID:           testHostChainID,
			HostFastWithdrawVault: testVault.Hex(),
			ValidiumMessageQueue:  testQueue.Hex(),
			ValidiumERC20Gateway:  testGateway.Hex(),
		},
		TokenWhitelist: config.TokenWhitelistConfig{
			Host: map[string]config.TokenPolicy{
				testHostToken.Hex(): {Allowed: true},
			},
		},
		Indexer: config.IndexerConfig{
			Confirmations:     3,
			BatchSize:         1000,
			PersistBlockCount: 1000,
			PollInterval:      10 * time.Millisecond,
		},
		Workers: config.WorkerConfig{
			BatchSize:    10,
			PollInterval: 10 * time.Millisecond,
		},
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	return gdb
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeValidiumClient is an in-memory source chain. The mutex guards
// filterCalls against the indexer goroutine.
type fakeValidiumClient struct {
	latest   uint64
	events   []chain.WithdrawERC20Event
	receipts map[common.Hash]*types.Receipt

	mu          sync.Mutex
	filterCalls [][2]uint64
}

func (f *fakeValidiumClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeValidiumClient) FilterWithdrawERC20(ctx context.Context, fromBlock, toBlock uint64) ([]chain.WithdrawERC20Event, error) {
	f.mu.Lock()
	f.filterCalls = append(f.filterCalls, [2]uint64{fromBlock, toBlock})
	f.mu.Unlock()
	return f.events, nil
}

func (f *fakeValidiumClient) FilterCalls() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]uint64(nil), f.filterCalls...)
}

func (f *fakeValidiumClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// fakeHostClient is an in-memory destination chain.
type fakeHostClient struct {
	nonce    uint64
	gasPrice *big.Int
	callErr  error
	sendErr  error

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	pool     map[common.Hash]*types.Transaction
}

func newFakeHostClient() *fakeHostClient {
	return &fakeHostClient{
		gasPrice: big.NewInt(2_000_000_000),
		receipts: map[common.Hash]*types.Receipt{},
		pool:     map[common.Hash]*types.Transaction{},
	}
}

func (f *fakeHostClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(testHostChainID), nil
}

func (f *fakeHostClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeHostClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeHostClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return nil, nil
}

func (f *fakeHostClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeHostClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeHostClient) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.pool[txHash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, true, nil
}

// rpcError mimics the provider-side error shape carrying revert data.
type rpcError struct {
	msg  string
	data interface{}
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorData() interface{} { return e.data }

// encodeErrorString builds an ABI-encoded Error(string) revert payload.
func encodeErrorString(reason string) []byte {
	strType := mustNewType("string")
	packed, err := abi.Arguments{{Type: strType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

// Log constructors for receipt-based tests.

func withdrawERC20Log(to common.Address, amount *big.Int, payload []byte) *types.Log {
	addrType := mustNewType("address")
	uintType := mustNewType("uint256")
	bytesType := mustNewType("bytes")
	data, err := abi.Arguments{
		{Type: addrType}, {Type: uintType}, {Type: bytesType},
	}.Pack(to, amount, payload)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: testGateway,
		Topics: []common.Hash{
			chain.WithdrawERC20Topic,
			common.BytesToHash(testHostToken.Bytes()),
			common.BytesToHash(testValidiumToken.Bytes()),
			common.BytesToHash(testSender.Bytes()),
		},
		Data: data,
	}
}

func appendMessageLog(index int64, messageHash common.Hash) *types.Log {
	uintType := mustNewType("uint256")
	b32Type := mustNewType("bytes32")
	data, err := abi.Arguments{
		{Type: uintType}, {Type: b32Type},
	}.Pack(big.NewInt(index), [32]byte(messageHash))
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: testQueue,
		Topics:  []common.Hash{chain.AppendMessageTopic},
		Data:    data,
	}
}

func mustNewType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
