package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
)

// TransactionRepository defines data access for claim transaction
// attempts. Rows are created by the message processor; the transaction
// processor owns the PENDING -> SUCCESSFUL/FAILED transitions.
type TransactionRepository interface {
	// MarkSuccessful marks a confirmed transaction terminal.
	MarkSuccessful(ctx context.Context, hash string) error

	// Supersede atomically marks the old attempt FAILED with the given
	// reason and inserts the replacement row, keeping exactly one live
	// submission per message while preserving the full attempt history.
	Supersede(ctx context.Context, oldHash, reason string, replacement *models.Transaction) error

	// Pending returns up to limit PENDING transactions in random order.
	Pending(ctx context.Context, limit int) ([]models.Transaction, error)

	All(ctx context.Context) ([]models.Transaction, error)
	ByMessageHash(ctx context.Context, messageHash string) ([]models.Transaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a TransactionRepository backed by GORM.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) MarkSuccessful(ctx context.Context, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("hash = ?", hash).
		Update("status", models.TransactionStatusSuccessful).Error
}

func (r *transactionRepository) Supersede(ctx context.Context, oldHash, reason string, replacement *models.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Transaction{}).
			Where("hash = ?", oldHash).
			Updates(map[string]interface{}{
				"status":         models.TransactionStatusFailed,
				"failure_reason": reason,
			}).Error
		if err != nil {
			return fmt.Errorf("fail transaction %s: %w", oldHash, err)
		}
		if err := tx.Create(replacement).Error; err != nil {
			return fmt.Errorf("insert replacement transaction %s: %w", replacement.Hash, err)
		}
		return nil
	})
}

func (r *transactionRepository) Pending(ctx context.Context, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ?", models.TransactionStatusPending).
		Order("random()").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *transactionRepository) All(ctx context.Context) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

func (r *transactionRepository) ByMessageHash(ctx context.Context, messageHash string) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("message_hash = ?", messageHash).
		Find(&rows).Error
	return rows, err
}
