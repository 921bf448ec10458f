package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/events"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/metrics"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

// withdrawRequest is one fast withdraw request extracted from a
// withdrawal's event logs.
type withdrawRequest struct {
	HostToken     common.Address
	ValidiumToken common.Address
	From          common.Address
	// Payload carries the recipient address; it is validated before
	// being decoded into Recipient.
	Payload   []byte
	Recipient common.Address
	Amount    *big.Int
	// MessageHash fingerprints the request and correlates its
	// transactions.
	MessageHash common.Hash
	// WithdrawTo is the original event's destination, re-checked against
	// the vault during validation.
	WithdrawTo common.Address
	Permit     string
}

// WithdrawalService validates PENDING withdrawals, signs one permit per
// extracted request and atomically promotes the withdrawal while
// creating its messages. Validation failures reject the whole
// withdrawal; a missing receipt fails closed rather than retrying
// forever.
type WithdrawalService struct {
	client  chain.ValidiumClient
	permits *chain.PermitSigner

	withdrawals repository.WithdrawalRepository
	publisher   *events.Publisher

	vault     common.Address
	queue     common.Address
	gateway   common.Address
	whitelist *config.TokenWhitelistConfig

	batchSize    int
	pollInterval time.Duration

	log      *logrus.Entry
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWithdrawalService wires the withdrawal processor from its
// collaborators.
func NewWithdrawalService(
	client chain.ValidiumClient,
	permits *chain.PermitSigner,
	withdrawals repository.WithdrawalRepository,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *logrus.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		client:       client,
		permits:      permits,
		withdrawals:  withdrawals,
		publisher:    publisher,
		vault:        common.HexToAddress(cfg.Contracts.HostFastWithdrawVault),
		queue:        common.HexToAddress(cfg.Contracts.ValidiumMessageQueue),
		gateway:      common.HexToAddress(cfg.Contracts.ValidiumERC20Gateway),
		whitelist:    &cfg.TokenWhitelist,
		batchSize:    cfg.Workers.BatchSize,
		pollInterval: cfg.Workers.PollInterval,
		log:          logger.WithField("module", "withdrawals"),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the processing loop.
func (s *WithdrawalService) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to exit.
func (s *WithdrawalService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *WithdrawalService) run() {
	defer close(s.doneChan)

	log := s.log.WithField("run", uuid.NewString()[:8])
	log.Info("Background worker started: processWithdrawals")

	ctx := context.Background()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		pending, err := s.withdrawals.Pending(ctx, s.batchSize)
		if err != nil {
			log.WithError(err).Error("Failed to fetch pending withdrawals")
			pending = nil
		}

		for _, w := range pending {
			if err := s.processWithdrawal(ctx, log, &w); err != nil {
				log.WithError(err).WithField("tx", w.ValidiumTxHash).
					Error("Unexpected error while processing withdrawal")
				metrics.WorkerItemErrors.WithLabelValues("withdrawals").Inc()
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

func (s *WithdrawalService) processWithdrawal(ctx context.Context, log *logrus.Entry, w *models.Withdrawal) error {
	log.WithField("tx", w.ValidiumTxHash).Info("Processing withdrawal")

	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(w.ValidiumTxHash))
	if errors.Is(err, ethereum.NotFound) {
		// Fail closed: a vanished transaction (reorg) is rejected instead
		// of retried indefinitely.
		return s.reject(ctx, log, w, "Transaction not found")
	}
	if err != nil {
		return fmt.Errorf("fetch receipt: %w", err)
	}

	requests, pairErr := s.extractRequests(receipt)
	if pairErr != nil {
		return s.reject(ctx, log, w, pairErr.Error())
	}
	if len(requests) == 0 {
		return s.reject(ctx, log, w, "No valid requests found")
	}

	if reason := s.validateRequests(requests); reason != "" {
		return s.reject(ctx, log, w, reason)
	}

	for i := range requests {
		permit, err := s.permits.SignWithdrawPermit(
			requests[i].HostToken,
			requests[i].ValidiumToken,
			requests[i].Recipient,
			requests[i].Amount,
			requests[i].MessageHash,
		)
		if err != nil {
			return fmt.Errorf("sign permit: %w", err)
		}
		requests[i].Permit = permit
	}
	log.WithField("tx", w.ValidiumTxHash).Debug("Withdraw request approved")

	messages := make([]*models.Message, 0, len(requests))
	for _, req := range requests {
		messages = append(messages, &models.Message{
			ValidiumTxHash: w.ValidiumTxHash,
			HostToken:      req.HostToken.Hex(),
			ValidiumToken:  req.ValidiumToken.Hex(),
			Sender:         req.From.Hex(),
			Recipient:      req.Recipient.Hex(),
			Amount:         req.Amount.String(),
			MessageHash:    req.MessageHash.Hex(),
			Permit:         req.Permit,
			Status:         models.MessageStatusPending,
		})
	}

	if err := s.withdrawals.Approve(ctx, w.ValidiumTxHash, messages); err != nil {
		return err
	}

	metrics.WithdrawalsProcessed.WithLabelValues("approved").Inc()
	s.publisher.WithdrawalApproved(w.ValidiumTxHash)
	return nil
}

func (s *WithdrawalService) reject(ctx context.Context, log *logrus.Entry, w *models.Withdrawal, reason string) error {
	log.WithFields(logrus.Fields{"tx": w.ValidiumTxHash, "reason": reason}).
		Warn("Rejecting withdrawal")
	if err := s.withdrawals.Reject(ctx, w.ValidiumTxHash, reason); err != nil {
		return err
	}
	metrics.WithdrawalsProcessed.WithLabelValues("rejected").Inc()
	s.publisher.WithdrawalRejected(w.ValidiumTxHash, reason)
	return nil
}

// extractRequests correlates the transaction's AppendMessage and
// WithdrawERC20 logs by emission order. Both event kinds are emitted in
// 1:1 interleaved order within a transaction, so the i-th occurrence of
// each forms one logical request; a length mismatch is a validation
// failure, not a fault.
func (s *WithdrawalService) extractRequests(receipt *types.Receipt) ([]withdrawRequest, error) {
	var appends []*chain.AppendMessageEvent
	var withdraws []*chain.WithdrawERC20Event

	for _, lg := range receipt.Logs {
		switch {
		case lg.Address == s.queue && len(lg.Topics) > 0 && lg.Topics[0] == chain.AppendMessageTopic:
			ev, err := chain.ParseAppendMessage(*lg)
			if err != nil {
				return nil, err
			}
			appends = append(appends, ev)
		case lg.Address == s.gateway && len(lg.Topics) > 0 && lg.Topics[0] == chain.WithdrawERC20Topic:
			ev, err := chain.ParseWithdrawERC20(*lg)
			if err != nil {
				return nil, err
			}
			withdraws = append(withdraws, ev)
		}
	}

	if len(appends) == 0 && len(withdraws) == 0 {
		return nil, nil
	}
	if len(appends) != len(withdraws) {
		return nil, fmt.Errorf("Mismatched withdraw events: %d queue, %d gateway", len(appends), len(withdraws))
	}

	requests := make([]withdrawRequest, 0, len(appends))
	for i := range appends {
		requests = append(requests, withdrawRequest{
			HostToken:     withdraws[i].HostToken,
			ValidiumToken: withdraws[i].ValidiumToken,
			From:          withdraws[i].From,
			Payload:       withdraws[i].Payload,
			Amount:        withdraws[i].Amount,
			MessageHash:   appends[i].MessageHash,
			WithdrawTo:    withdraws[i].To,
		})
	}
	return requests, nil
}

// validateRequests applies the admission policy to every request and
// decodes each payload into its recipient. Any failure rejects the
// entire withdrawal; the returned string is the stored rejection
// reason, empty on success.
func (s *WithdrawalService) validateRequests(requests []withdrawRequest) string {
	for i := range requests {
		req := &requests[i]

		// Validium withdraw requests must target the host fast withdraw
		// vault.
		if req.WithdrawTo != s.vault {
			return fmt.Sprintf("Invalid withdraw to address: %s", req.WithdrawTo.Hex())
		}

		// The recipient address is encoded in the message payload.
		if len(req.Payload) != common.AddressLength {
			return fmt.Sprintf("Invalid request to address: %s", hexutil.Encode(req.Payload))
		}
		req.Recipient = common.BytesToAddress(req.Payload)

		// Only allow whitelisted tokens.
		// TODO: enforce the configured per-token limit.
		if !s.whitelist.HostAllowed(req.HostToken.Hex()) &&
			!s.whitelist.ValidiumAllowed(req.ValidiumToken.Hex()) {
			return fmt.Sprintf("Invalid token, host: %s, validium: %s",
				req.HostToken.Hex(), req.ValidiumToken.Hex())
		}
	}
	return ""
}
