package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
)

// MessageRepository defines data access for messages. Messages are
// created inside WithdrawalRepository.Approve; this repository owns the
// single PENDING -> INITIATED transition.
type MessageRepository interface {
	// Initiate atomically inserts the transaction record and flips the
	// owning message to INITIATED. The message update must affect exactly
	// one row; any other count rolls the unit back with
	// ErrConcurrentModification (an ambiguous or already-mutated
	// message-hash correlation).
	Initiate(ctx context.Context, txn *models.Transaction) error

	// Pending returns up to limit PENDING messages in random order.
	Pending(ctx context.Context, limit int) ([]models.Message, error)

	All(ctx context.Context) ([]models.Message, error)
	ByMessageHash(ctx context.Context, messageHash string) (*models.Message, error)
	ByValidiumTxHash(ctx context.Context, validiumTxHash string) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a MessageRepository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Initiate(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("insert transaction %s: %w", txn.Hash, err)
		}

		res := tx.Model(&models.Message{}).
			Where("message_hash = ?", txn.MessageHash).
			Update("status", models.MessageStatusInitiated)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("initiate message %s: %w", txn.MessageHash, ErrConcurrentModification)
		}
		return nil
	})
}

func (r *messageRepository) Pending(ctx context.Context, limit int) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("status = ?", models.MessageStatusPending).
		Order("random()").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *messageRepository) All(ctx context.Context) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

func (r *messageRepository) ByMessageHash(ctx context.Context, messageHash string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("message_hash = ?", messageHash).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepository) ByValidiumTxHash(ctx context.Context, validiumTxHash string) ([]models.Message, error) {
	var rows []models.Message
	err := r.db.WithContext(ctx).
		Where("validium_tx_hash = ?", validiumTxHash).
		Find(&rows).Error
	return rows, err
}
