package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/db"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
)

const (
	testTxHash  = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testMsgHash = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	return gdb
}

func testMessage(validiumTxHash, messageHash string) *models.Message {
	return &models.Message{
		ValidiumTxHash: validiumTxHash,
		HostToken:      "0x3333333333333333333333333333333333333333",
		ValidiumToken:  "0x4444444444444444444444444444444444444444",
		Sender:         "0x5555555555555555555555555555555555555555",
		Recipient:      "0x6666666666666666666666666666666666666666",
		Amount:         "1000000000000000000",
		MessageHash:    messageHash,
		Permit:         "0xabcd",
		Status:         models.MessageStatusPending,
	}
}

func TestWithdrawalInsertIsIdempotent(t *testing.T) {
	repo := NewWithdrawalRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testTxHash))
	require.NoError(t, repo.Insert(ctx, testTxHash))

	rows, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.WithdrawalStatusPending, rows[0].Status)
	assert.Equal(t, testTxHash, rows[0].ValidiumTxHash)
}

func TestWithdrawalReject(t *testing.T) {
	repo := NewWithdrawalRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, testTxHash))
	require.NoError(t, repo.Reject(ctx, testTxHash, "Transaction not found"))

	w, err := repo.ByTxHash(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusRejected, w.Status)
	assert.Equal(t, "Transaction not found", w.RejectReason)
}

func TestWithdrawalApproveCreatesMessages(t *testing.T) {
	gdb := newTestDB(t)
	withdrawals := NewWithdrawalRepository(gdb)
	messages := NewMessageRepository(gdb)
	ctx := context.Background()

	require.NoError(t, withdrawals.Insert(ctx, testTxHash))

	otherHash := "0x7777777777777777777777777777777777777777777777777777777777777777"
	err := withdrawals.Approve(ctx, testTxHash, []*models.Message{
		testMessage(testTxHash, testMsgHash),
		testMessage(testTxHash, otherHash),
	})
	require.NoError(t, err)

	w, err := withdrawals.ByTxHash(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusApproved, w.Status)

	rows, err := messages.ByValidiumTxHash(ctx, testTxHash)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, m := range rows {
		assert.Equal(t, models.MessageStatusPending, m.Status)
	}
}

func TestWithdrawalApproveRollsBackWhenNotPending(t *testing.T) {
	gdb := newTestDB(t)
	withdrawals := NewWithdrawalRepository(gdb)
	messages := NewMessageRepository(gdb)
	ctx := context.Background()

	require.NoError(t, withdrawals.Insert(ctx, testTxHash))
	require.NoError(t, withdrawals.Approve(ctx, testTxHash, []*models.Message{
		testMessage(testTxHash, testMsgHash),
	}))

	// Second approval must fail and must not leave its messages behind.
	dupHash := "0x8888888888888888888888888888888888888888888888888888888888888888"
	err := withdrawals.Approve(ctx, testTxHash, []*models.Message{
		testMessage(testTxHash, dupHash),
	})
	require.ErrorIs(t, err, ErrConcurrentModification)

	rows, err := messages.ByValidiumTxHash(ctx, testTxHash)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, testMsgHash, rows[0].MessageHash)
}

func TestWithdrawalPendingSelection(t *testing.T) {
	repo := NewWithdrawalRepository(newTestDB(t))
	ctx := context.Background()

	hashes := []string{
		"0xaa00000000000000000000000000000000000000000000000000000000000001",
		"0xaa00000000000000000000000000000000000000000000000000000000000002",
		"0xaa00000000000000000000000000000000000000000000000000000000000003",
	}
	for _, h := range hashes {
		require.NoError(t, repo.Insert(ctx, h))
	}
	require.NoError(t, repo.Reject(ctx, hashes[0], "bad"))

	rows, err := repo.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = repo.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMessageInitiate(t *testing.T) {
	gdb := newTestDB(t)
	withdrawals := NewWithdrawalRepository(gdb)
	messages := NewMessageRepository(gdb)
	transactions := NewTransactionRepository(gdb)
	ctx := context.Background()

	require.NoError(t, withdrawals.Insert(ctx, testTxHash))
	require.NoError(t, withdrawals.Approve(ctx, testTxHash, []*models.Message{
		testMessage(testTxHash, testMsgHash),
	}))

	txn := &models.Transaction{
		Hash:        "0x9999999999999999999999999999999999999999999999999999999999999999",
		MessageHash: testMsgHash,
		Sender:      "0x5555555555555555555555555555555555555555",
		Nonce:       "7",
		Status:      models.TransactionStatusPending,
	}
	require.NoError(t, messages.Initiate(ctx, txn))

	m, err := messages.ByMessageHash(ctx, testMsgHash)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusInitiated, m.Status)

	rows, err := transactions.ByMessageHash(ctx, testMsgHash)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TransactionStatusPending, rows[0].Status)
}

func TestMessageInitiateUnknownMessageRollsBack(t *testing.T) {
	gdb := newTestDB(t)
	messages := NewMessageRepository(gdb)
	transactions := NewTransactionRepository(gdb)
	ctx := context.Background()

	txn := &models.Transaction{
		Hash:        "0x9999999999999999999999999999999999999999999999999999999999999999",
		MessageHash: testMsgHash,
		Sender:      "0x5555555555555555555555555555555555555555",
		Nonce:       "0",
		Status:      models.TransactionStatusPending,
	}
	err := messages.Initiate(ctx, txn)
	require.ErrorIs(t, err, ErrConcurrentModification)

	rows, err := transactions.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransactionMarkSuccessful(t *testing.T) {
	gdb := newTestDB(t)
	transactions := NewTransactionRepository(gdb)
	ctx := context.Background()

	txn := &models.Transaction{
		Hash:        "0x9999999999999999999999999999999999999999999999999999999999999999",
		MessageHash: testMsgHash,
		Sender:      "0x5555555555555555555555555555555555555555",
		Nonce:       "1",
		Status:      models.TransactionStatusPending,
	}
	require.NoError(t, gdb.Create(txn).Error)

	require.NoError(t, transactions.MarkSuccessful(ctx, txn.Hash))

	rows, err := transactions.ByMessageHash(ctx, testMsgHash)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TransactionStatusSuccessful, rows[0].Status)

	pending, err := transactions.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransactionSupersede(t *testing.T) {
	gdb := newTestDB(t)
	transactions := NewTransactionRepository(gdb)
	ctx := context.Background()

	oldHash := "0x9999999999999999999999999999999999999999999999999999999999999999"
	newHash := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	require.NoError(t, gdb.Create(&models.Transaction{
		Hash:        oldHash,
		MessageHash: testMsgHash,
		Sender:      "0x5555555555555555555555555555555555555555",
		Nonce:       "1",
		Status:      models.TransactionStatusPending,
	}).Error)

	err := transactions.Supersede(ctx, oldHash, "Transaction dropped", &models.Transaction{
		Hash:        newHash,
		MessageHash: testMsgHash,
		Sender:      "0x5555555555555555555555555555555555555555",
		Nonce:       "2",
		Status:      models.TransactionStatusPending,
	})
	require.NoError(t, err)

	rows, err := transactions.ByMessageHash(ctx, testMsgHash)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byHash := map[string]models.Transaction{}
	for _, r := range rows {
		byHash[r.Hash] = r
	}
	assert.Equal(t, models.TransactionStatusFailed, byHash[oldHash].Status)
	assert.Equal(t, "Transaction dropped", byHash[oldHash].FailureReason)
	assert.Equal(t, models.TransactionStatusPending, byHash[newHash].Status)

	pending, err := transactions.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newHash, pending[0].Hash)
}

func TestIndexerStateCheckpoint(t *testing.T) {
	gdb := newTestDB(t)
	state := NewIndexerStateRepository(gdb)
	ctx := context.Background()

	block, err := state.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, block)

	require.NoError(t, state.Set(ctx, 1000))
	require.NoError(t, state.Set(ctx, 2000))

	block, err = state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), block)

	var count int64
	require.NoError(t, gdb.Model(&models.IndexerState{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
