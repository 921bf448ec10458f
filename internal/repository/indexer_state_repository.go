package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
)

// indexerStateID is the key of the single checkpoint row.
const indexerStateID = 1

// IndexerStateRepository persists the indexer's scanning checkpoint.
type IndexerStateRepository interface {
	// Get returns the last persisted block number, or zero when the
	// indexer has never checkpointed.
	Get(ctx context.Context) (uint64, error)

	// Set upserts the checkpoint row.
	Set(ctx context.Context, lastProcessedBlock uint64) error
}

type indexerStateRepository struct {
	db *gorm.DB
}

// NewIndexerStateRepository creates an IndexerStateRepository backed by GORM.
func NewIndexerStateRepository(db *gorm.DB) IndexerStateRepository {
	return &indexerStateRepository{db: db}
}

func (r *indexerStateRepository) Get(ctx context.Context) (uint64, error) {
	var state models.IndexerState
	err := r.db.WithContext(ctx).First(&state, indexerStateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.LastProcessedBlock, nil
}

func (r *indexerStateRepository) Set(ctx context.Context, lastProcessedBlock uint64) error {
	state := &models.IndexerState{
		ID:                 indexerStateID,
		LastProcessedBlock: lastProcessedBlock,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_processed_block", "updated_at"}),
		}).
		Create(state).Error
}
