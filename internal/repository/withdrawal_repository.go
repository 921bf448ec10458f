package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
)

// WithdrawalRepository defines data access for withdrawals. The indexer
// inserts, the withdrawal processor transitions; everyone else reads.
type WithdrawalRepository interface {
	// Insert records a PENDING withdrawal keyed by its validium
	// transaction hash. Inserting an already-known hash is a no-op.
	Insert(ctx context.Context, validiumTxHash string) error

	// Reject marks a withdrawal REJECTED with a human-readable reason.
	Reject(ctx context.Context, validiumTxHash, reason string) error

	// Approve atomically inserts the withdrawal's messages and promotes
	// it PENDING -> APPROVED. Returns ErrConcurrentModification (and
	// rolls everything back) unless exactly one still-PENDING row was
	// updated.
	Approve(ctx context.Context, validiumTxHash string, messages []*models.Message) error

	// Pending returns up to limit PENDING withdrawals in random order.
	Pending(ctx context.Context, limit int) ([]models.Withdrawal, error)

	All(ctx context.Context) ([]models.Withdrawal, error)
	ByTxHash(ctx context.Context, validiumTxHash string) (*models.Withdrawal, error)
}

type withdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository creates a WithdrawalRepository backed by GORM.
func NewWithdrawalRepository(db *gorm.DB) WithdrawalRepository {
	return &withdrawalRepository{db: db}
}

func (r *withdrawalRepository) Insert(ctx context.Context, validiumTxHash string) error {
	w := &models.Withdrawal{
		ValidiumTxHash: validiumTxHash,
		Status:         models.WithdrawalStatusPending,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "validium_tx_hash"}},
			DoNothing: true,
		}).
		Create(w).Error
}

func (r *withdrawalRepository) Reject(ctx context.Context, validiumTxHash, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.Withdrawal{}).
		Where("validium_tx_hash = ?", validiumTxHash).
		Updates(map[string]interface{}{
			"status":        models.WithdrawalStatusRejected,
			"reject_reason": reason,
		}).Error
}

func (r *withdrawalRepository) Approve(ctx context.Context, validiumTxHash string, messages []*models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range messages {
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("insert message %s: %w", m.MessageHash, err)
			}
		}

		res := tx.Model(&models.Withdrawal{}).
			Where("validium_tx_hash = ? AND status = ?", validiumTxHash, models.WithdrawalStatusPending).
			Update("status", models.WithdrawalStatusApproved)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("approve withdrawal %s: %w", validiumTxHash, ErrConcurrentModification)
		}
		return nil
	})
}

func (r *withdrawalRepository) Pending(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ?", models.WithdrawalStatusPending).
		Order("random()").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *withdrawalRepository) All(ctx context.Context) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

func (r *withdrawalRepository) ByTxHash(ctx context.Context, validiumTxHash string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("validium_tx_hash = ?", validiumTxHash).
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}
