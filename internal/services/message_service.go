package services

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/chain"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/events"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/metrics"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/models"
	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

// Operator-side revert reasons: the claim would succeed once a human
// fixes the deployment, so the message stays PENDING.
const (
	reasonVaultUnderfunded  = "ERC20: burn amount exceeds balance"
	reasonAccessControlPref = "AccessControl"
)

// PersistTransactionFunc persists one transaction record in a single
// atomic unit. The default implementation also flips the owning message
// to INITIATED; the drop-retry path instead supersedes the prior
// attempt.
type PersistTransactionFunc func(ctx context.Context, txn *models.Transaction) error

// MessageService drives PENDING messages to their first claim
// transaction. Every claim is simulated before broadcast, and the
// transaction record is durable strictly before the signed payload
// reaches the network.
type MessageService struct {
	client chain.HostClient
	signer *chain.TxSigner

	messages  repository.MessageRepository
	publisher *events.Publisher

	batchSize    int
	pollInterval time.Duration

	log      *logrus.Entry
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewMessageService wires the message processor from its collaborators.
func NewMessageService(
	client chain.HostClient,
	signer *chain.TxSigner,
	messages repository.MessageRepository,
	publisher *events.Publisher,
	cfg *config.Config,
	logger *logrus.Logger,
) *MessageService {
	return &MessageService{
		client:       client,
		signer:       signer,
		messages:     messages,
		publisher:    publisher,
		batchSize:    cfg.Workers.BatchSize,
		pollInterval: cfg.Workers.PollInterval,
		log:          logger.WithField("module", "messages"),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the processing loop.
func (s *MessageService) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to exit.
func (s *MessageService) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

func (s *MessageService) run() {
	defer close(s.doneChan)

	log := s.log.WithField("run", uuid.NewString()[:8])
	log.Info("Background worker started: processMessages")

	ctx := context.Background()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		pending, err := s.messages.Pending(ctx, s.batchSize)
		if err != nil {
			log.WithError(err).Error("Failed to fetch pending messages")
			pending = nil
		}

		for _, m := range pending {
			if err := s.ProcessMessage(ctx, &m, s.initiate); err != nil {
				log.WithError(err).WithField("message", m.MessageHash).
					Error("Unexpected error while processing message")
				metrics.WorkerItemErrors.WithLabelValues("messages").Inc()
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

// initiate is the default persistence path: record the transaction and
// flip the message to INITIATED in one atomic unit.
func (s *MessageService) initiate(ctx context.Context, txn *models.Transaction) error {
	if err := s.messages.Initiate(ctx, txn); err != nil {
		return err
	}
	metrics.MessagesInitiated.Inc()
	s.publisher.MessageInitiated(txn.MessageHash)
	return nil
}

// ProcessMessage simulates the claim and, on success, signs and
// broadcasts it, persisting the transaction record through persist
// strictly before transmission. The drop-retry path re-enters here with
// a superseding persist callback.
func (s *MessageService) ProcessMessage(ctx context.Context, m *models.Message, persist PersistTransactionFunc) error {
	s.log.WithField("message", m.MessageHash).Info("Processing message")

	args, err := claimArgsFromMessage(m)
	if err != nil {
		return err
	}

	callData, err := s.signer.ClaimCallData(args)
	if err != nil {
		return err
	}

	// Simulate first; this is the primary safety gate before any funds
	// move.
	vault := s.signer.Vault()
	_, simErr := s.client.CallContract(ctx, ethereum.CallMsg{
		From: s.signer.Address(),
		To:   &vault,
		Gas:  chain.ClaimGasLimit,
		Data: callData,
	})
	if simErr != nil {
		return s.handleSimulationFailure(ctx, m, simErr, persist)
	}

	// TODO: implement proper nonce management; concurrent senders can
	// race on the account's transaction count.
	nonce, err := s.client.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return fmt.Errorf("query nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("query gas price: %w", err)
	}

	signedTx, err := s.signer.SignClaim(nonce, gasPrice, args)
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"from":  s.signer.Address().Hex(),
		"nonce": nonce,
		"hash":  signedTx.Hash().Hex(),
	}).Debug("Transaction prepared")

	// Write the record before broadcasting, so a crash after
	// transmission still leaves a durable trace of the attempt.
	if err := persist(ctx, &models.Transaction{
		Hash:        signedTx.Hash().Hex(),
		MessageHash: m.MessageHash,
		Sender:      s.signer.Address().Hex(),
		Nonce:       strconv.FormatUint(nonce, 10),
		Status:      models.TransactionStatusPending,
	}); err != nil {
		return err
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("broadcast transaction: %w", err)
	}
	metrics.TransactionsBroadcast.Inc()
	return nil
}

// handleSimulationFailure classifies a failed simulation. Terminal
// contract outcomes synthesize a sentinel transaction; operator and
// unknown conditions leave the message PENDING for the next poll.
func (s *MessageService) handleSimulationFailure(ctx context.Context, m *models.Message, simErr error, persist PersistTransactionFunc) error {
	log := s.log.WithField("message", m.MessageHash)
	log.Warn("Transaction simulation failed")

	reason, isRevert := chain.DecodeRevertReason(simErr)
	if !isRevert {
		// Provider-side failure rather than a contract revert; retry on
		// the next poll.
		log.WithError(simErr).Error("Unknown error")
		return nil
	}

	switch {
	case reason == chain.ReasonAlreadyProcessed:
		log.Warn("Message already processed")
		// Record the outcome through the normal atomic path; the zero
		// hash and sender mark it as a sentinel with no broadcast.
		return persist(ctx, &models.Transaction{
			Hash:          common.Hash{}.Hex(),
			MessageHash:   m.MessageHash,
			Sender:        common.Address{}.Hex(),
			Nonce:         "0",
			Status:        models.TransactionStatusFailed,
			FailureReason: reason,
		})

	case reason == reasonVaultUnderfunded:
		log.WithField("reason", reason).Error("Claim reverted, please ensure the vault is funded")
		return nil

	case strings.HasPrefix(reason, reasonAccessControlPref):
		log.WithField("reason", reason).Error("Claim reverted, please ensure the correct signer is configured")
		return nil

	default:
		log.WithField("reason", reason).Error("Claim reverted")
		return nil
	}
}

// claimArgsFromMessage rebuilds the on-chain call arguments from a
// stored message row.
func claimArgsFromMessage(m *models.Message) (chain.ClaimArgs, error) {
	amount, ok := new(big.Int).SetString(m.Amount, 10)
	if !ok {
		return chain.ClaimArgs{}, fmt.Errorf("invalid message amount: %s", m.Amount)
	}
	signature, err := hexutil.Decode(m.Permit)
	if err != nil {
		return chain.ClaimArgs{}, fmt.Errorf("decode permit: %w", err)
	}
	return chain.ClaimArgs{
		HostToken:   common.HexToAddress(m.HostToken),
		To:          common.HexToAddress(m.Recipient),
		Amount:      amount,
		MessageHash: common.HexToHash(m.MessageHash),
		Signature:   signature,
	}, nil
}
