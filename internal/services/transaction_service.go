package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/events"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/metrics"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

// reasonDropped is stored on a superseded transaction attempt.
const reasonDropped = "Transaction dropped"

// TransactionService tracks PENDING claim transactions to finality.
// Confirmed transactions become terminal; a transaction visible in
// neither the chain nor the pending pool is presumed dropped and is
// superseded through the message processor's submission logic.
type TransactionService struct {
	client chain.HostClient

	transactions repository.TransactionRepository
	messages     repository.MessageRepository
	messageSvc   *MessageService
	publisher    *events.Publisher

	batchSize    int
	pollInterval time.Duration

	log      *logrus.Entry
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewTransactionService wires the transaction processor from its
// collaborators. messageSvc supplies the re-submission path for dropped
// transactions.
func NewTransactionService(
	client chain.HostClient,
	transactions repository.TransactionRepository,
	messages repository.MessageRepository,
	messageSvc *MessageService,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *logrus.Logger,
) *TransactionService {
	return &TransactionService{
		client:       client,
		transactions: transactions,
		messages:     messages,
		messageSvc:   messageSvc,
		publisher:    publisher,
		batchSize:    cfg.Workers.BatchSize,
		pollInterval: cfg.Workers.PollInterval,
		log:          logger.WithField("module", "transactions"),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the processing loop.
func (s *TransactionService) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to exit.
func (s *TransactionService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *TransactionService) run() {
	defer close(s.doneChan)

	log := s.log.WithField("run", uuid.NewString()[:8])
	log.Info("Background worker started: processTransactions")

	ctx := context.Background()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		pending, err := s.transactions.Pending(ctx, s.batchSize)
		if err != nil {
			log.WithError(err).Error("Failed to fetch pending transactions")
			pending = nil
		}

		for _, txn := range pending {
			if err := s.processTransaction(ctx, log, &txn); err != nil {
				log.WithError(err).WithField("hash", txn.Hash).
					Error("Unexpected error while processing transaction")
				metrics.WorkerItemErrors.WithLabelValues("transactions").Inc()
			}
		}

		if len(pending) >= s.batchSize {
			continue
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *TransactionService) processTransaction(ctx context.Context, log *logrus.Entry, txn *models.Transaction) error {
	log.WithField("hash", txn.Hash).Info("Processing transaction")

	hash := common.HexToHash(txn.Hash)

	receipt, err := s.client.TransactionReceipt(ctx, hash)
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("fetch receipt: %w", err)
	}

	if receipt != nil && receipt.Status == types.ReceiptStatusSuccessful {
		log.WithField("hash", txn.Hash).Debug("Transaction is confirmed")
		if err := s.transactions.MarkSuccessful(ctx, txn.Hash); err != nil {
			return err
		}
		metrics.TransactionsConfirmed.Inc()
		s.publisher.TransactionConfirmed(txn.Hash)
		return nil
	}

	if receipt != nil {
		// Executed but reverted on chain (rare).
		// TODO: extract the failure reason and mark the row FAILED.
		log.WithField("hash", txn.Hash).Warn("Transaction failed")
		return nil
	}

	_, _, err = s.client.TransactionByHash(ctx, hash)
	if err == nil {
		// Still visible in the node's pool.
		// TODO: bump gas for transactions stuck in the pending pool.
		log.WithField("hash", txn.Hash).Warn("Transaction is pending")
		return nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("lookup pending transaction: %w", err)
	}

	// Neither receipt nor pool entry: the transaction was dropped or
	// never sent.
	log.WithField("hash", txn.Hash).Warn("Transaction was dropped")
	metrics.TransactionsDropped.Inc()
	s.publisher.TransactionDropped(txn.Hash)
	return s.resend(ctx, log, txn)
}

// resend re-runs the message processor's submission logic for the
// dropped transaction's parent message, superseding the old attempt in
// the same atomic unit that records the new one.
func (s *TransactionService) resend(ctx context.Context, log *logrus.Entry, dropped *models.Transaction) error {
	m, err := s.messages.ByMessageHash(ctx, dropped.MessageHash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// TODO: escalate unresolvable retries instead of abandoning them.
		log.WithField("message", dropped.MessageHash).Warn("Parent message not found, abandoning retry")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve parent message: %w", err)
	}

	persist := func(ctx context.Context, replacement *models.Transaction) error {
		if err := s.transactions.Supersede(ctx, dropped.Hash, reasonDropped, replacement); err != nil {
			return err
		}
		metrics.TransactionRetries.Inc()
		return nil
	}
	return s.messageSvc.ProcessMessage(ctx, m, persist)
}
