package services

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

func TestIndexRangeRecordsVaultWithdrawals(t *testing.T) {
	gdb := testDB(t)
	withdrawals := repository.NewWithdrawalRepository(gdb)
	state := repository.NewIndexerStateRepository(gdb)

	txA := common.HexToHash("0xaaa1")
	txB := common.HexToHash("0xaaa2")

	client := &fakeValidiumClient{
		events: []chain.WithdrawERC20Event{
			{To: testVault, TxHash: txA},
			// Directed at some other contract; must be skipped.
			{To: testRecipient, TxHash: txB},
		},
	}

	svc := NewIndexerService(client, withdrawals, state, testConfig(), testLogger())
	ctx := context.Background()

	require.NoError(t, svc.indexRange(ctx, svc.log, 1, 100))

	rows, err := withdrawals.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, txA.Hex(), rows[0].ValidiumTxHash)
}

func TestIndexRangeIsIdempotent(t *testing.T) {
	gdb := testDB(t)
	withdrawals := repository.NewWithdrawalRepository(gdb)
	state := repository.NewIndexerStateRepository(gdb)

	txA := common.HexToHash("0xaaa1")
	client := &fakeValidiumClient{
		events: []chain.WithdrawERC20Event{{To: testVault, TxHash: txA}},
	}

	svc := NewIndexerService(client, withdrawals, state, testConfig(), testLogger())
	ctx := context.Background()

	// A restart re-scans part of the window; the duplicate insert must
	// be absorbed silently.
	require.NoError(t, svc.indexRange(ctx, svc.log, 1, 100))
	require.NoError(t, svc.indexRange(ctx, svc.log, 50, 100))

	rows, err := withdrawals.All(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIndexerRunHonorsConfirmations(t *testing.T) {
	gdb := testDB(t)
	withdrawals := repository.NewWithdrawalRepository(gdb)
	state := repository.NewIndexerStateRepository(gdb)

	client := &fakeValidiumClient{latest: 103}

	cfg := testConfig()
	cfg.Indexer.PersistBlockCount = 10

	svc := NewIndexerService(client, withdrawals, state, cfg, testLogger())
	svc.Start()

	// Wait until the first batch has been scanned.
	require.Eventually(t, func() bool {
		return len(client.FilterCalls()) > 0
	}, time.Second, 5*time.Millisecond)
	svc.Stop()

	// With 3 confirmations held back from block 103 the scan must stop
	// at block 100.
	first := client.FilterCalls()[0]
	assert.Equal(t, uint64(1), first[0])
	assert.Equal(t, uint64(100), first[1])

	block, err := state.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), block)
}
