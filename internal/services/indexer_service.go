package services

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/metrics"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

// IndexerService advances a scanning cursor over the validium chain and
// records every withdraw event directed at the fast withdraw vault as a
// PENDING withdrawal. The cursor advances in memory after every batch;
// the durable checkpoint lags by up to PersistBlockCount blocks, so a
// restart re-scans a bounded window that the idempotent insert absorbs.
type IndexerService struct {
	client      chain.ValidiumClient
	withdrawals repository.WithdrawalRepository
	state       repository.IndexerStateRepository

	vault             common.Address
	confirmations     uint64
	batchSize         uint64
	persistBlockCount uint64
	pollInterval      time.Duration

	log      *logrus.Entry
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewIndexerService wires the indexer from its collaborators.
func NewIndexerService(
	client chain.ValidiumClient,
	withdrawals repository.WithdrawalRepository,
	state repository.IndexerStateRepository,
	cfg *config.Config,
	logger *logrus.Logger,
) *IndexerService {
	return &IndexerService{
		client:            client,
		withdrawals:       withdrawals,
		state:             state,
		vault:             common.HexToAddress(cfg.Contracts.HostFastWithdrawVault),
		confirmations:     cfg.Indexer.Confirmations,
		batchSize:         cfg.Indexer.BatchSize,
		persistBlockCount: cfg.Indexer.PersistBlockCount,
		pollInterval:      cfg.Indexer.PollInterval,
		log:               logger.WithField("module", "indexer"),
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// Start launches the indexing loop.
func (s *IndexerService) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to exit.
func (s *IndexerService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *IndexerService) run() {
	defer close(s.doneChan)

	log := s.log.WithField("run", uuid.NewString()[:8])
	log.Info("Background worker started: indexer")

	ctx := context.Background()

	lastPersisted, err := s.state.Get(ctx)
	if err != nil {
		// Fall back to zero; the idempotent insert makes the full
		// re-scan safe, only slow.
		log.WithError(err).Error("Failed to load indexer checkpoint, starting from genesis")
		lastPersisted = 0
	}
	lastProcessed := lastPersisted
	log.WithField("block", lastProcessed).Debug("Resuming from last processed block")

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		latest, err := s.client.BlockNumber(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to query latest block")
			if !s.sleep() {
				return
			}
			continue
		}

		var target uint64
		if latest > s.confirmations {
			target = latest - s.confirmations
		}

		if target <= lastProcessed {
			if !s.sleep() {
				return
			}
			continue
		}

		fromBlock := lastProcessed + 1
		toBlock := min(target, fromBlock+s.batchSize-1)

		if err := s.indexRange(ctx, log, fromBlock, toBlock); err != nil {
			log.WithError(err).Error("Unexpected error while indexing events")
			if !s.sleep() {
				return
			}
			continue
		}

		lastProcessed = toBlock
		metrics.BlocksIndexed.Add(float64(toBlock - fromBlock + 1))
		metrics.LastProcessedBlock.Set(float64(lastProcessed))

		if lastProcessed-lastPersisted >= s.persistBlockCount {
			if err := s.state.Set(ctx, lastProcessed); err != nil {
				log.WithError(err).Error("Failed to persist indexer checkpoint")
				continue
			}
			lastPersisted = lastProcessed
		}
	}
}

// indexRange scans one inclusive block range and records matching
// events. Inserting an already-known transaction hash is a silent no-op.
func (s *IndexerService) indexRange(ctx context.Context, log *logrus.Entry, fromBlock, toBlock uint64) error {
	log.WithFields(logrus.Fields{"from": fromBlock, "to": toBlock}).Debug("Indexing block range")

	events, err := s.client.FilterWithdrawERC20(ctx, fromBlock, toBlock)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		log.WithField("count", len(events)).Debug("Events found")
	}

	for _, ev := range events {
		// common.Address comparison is canonical, so hex casing of the
		// configured vault address does not matter.
		if ev.To != s.vault {
			log.WithFields(logrus.Fields{
				"tx":         ev.TxHash.Hex(),
				"withdrawTo": ev.To.Hex(),
			}).Debug("Skipping transaction with non-matching withdrawTo")
			continue
		}

		if err := s.withdrawals.Insert(ctx, ev.TxHash.Hex()); err != nil {
			return err
		}
		metrics.WithdrawalsRecorded.Inc()
	}
	return nil
}

// sleep waits one poll interval; false means the service was stopped.
func (s *IndexerService) sleep() bool {
	select {
	case <-s.stopChan:
		return false
	case <-time.After(s.pollInterval):
		return true
	}
}

