package models

import (
	"time"
)

// WithdrawalStatus lifecycle status of a withdrawal.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "PENDING"  // recorded by the indexer, awaiting validation
	WithdrawalStatusApproved WithdrawalStatus = "APPROVED" // validated, messages issued
	WithdrawalStatusRejected WithdrawalStatus = "REJECTED" // failed validation, terminal
)

// Withdrawal is one source-chain transaction that emitted a withdrawal
// event directed at the fast withdraw vault. The validium transaction
// hash is the natural key; re-observing the same transaction is a no-op.
type Withdrawal struct {
	ID             uint             `json:"id" gorm:"primaryKey"`
	ValidiumTxHash string           `json:"validium_tx_hash" gorm:"size:66;not null;uniqueIndex"`
	Status         WithdrawalStatus `json:"status" gorm:"size:16;not null;index"`
	RejectReason   string           `json:"reject_reason" gorm:"type:text"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// MessageStatus lifecycle status of a message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"   // permit signed, claim not yet attempted
	MessageStatusInitiated MessageStatus = "INITIATED" // first transaction recorded; retries stay at the transaction layer
)

// Message is one withdrawal request extracted from a withdrawal's event
// logs. A single validium transaction may carry several requests; the
// message hash correlates a message with its claim transactions.
type Message struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	ValidiumTxHash string        `json:"validium_tx_hash" gorm:"size:66;not null;index"`
	HostToken      string        `json:"host_token" gorm:"size:42;not null"`
	ValidiumToken  string        `json:"validium_token" gorm:"size:42;not null"`
	Sender         string        `json:"sender" gorm:"size:42;not null"`
	Recipient      string        `json:"recipient" gorm:"size:42;not null"`
	Amount         string        `json:"amount" gorm:"size:78;not null"` // uint256 decimal string
	MessageHash    string        `json:"message_hash" gorm:"size:66;not null;index"`
	Permit         string        `json:"permit" gorm:"type:text;not null"`
	Status         MessageStatus `json:"status" gorm:"size:16;not null;index"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TransactionStatus lifecycle status of a claim transaction attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusSuccessful TransactionStatus = "SUCCESSFUL"
	TransactionStatusFailed     TransactionStatus = "FAILED"
)

// Transaction is one on-chain submission attempt for a message. A
// message accumulates one row per attempt; a sentinel row (zero hash and
// sender, nonce 0) records a terminal outcome reached without any
// broadcast.
type Transaction struct {
	ID            uint              `json:"id" gorm:"primaryKey"`
	Hash          string            `json:"hash" gorm:"size:66;not null;index"`
	MessageHash   string            `json:"message_hash" gorm:"size:66;not null;index"`
	Sender        string            `json:"sender" gorm:"size:42;not null"`
	Nonce         string            `json:"nonce" gorm:"size:78;not null"`
	Status        TransactionStatus `json:"status" gorm:"size:16;not null;index"`
	FailureReason string            `json:"failure_reason" gorm:"type:text"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IndexerState is the single-row checkpoint of the chain event indexer.
// The persisted block number always trails the block actually processed
// in memory, bounding the re-scan window after a restart.
type IndexerState struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	LastProcessedBlock uint64    `json:"last_processed_block" gorm:"not null"`
	UpdatedAt          time.Time `json:"updated_at"`
}
