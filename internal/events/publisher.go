package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects of the relayer lifecycle events.
const (
	SubjectWithdrawalApproved = "fastwithdraw.withdrawal.approved"
	SubjectWithdrawalRejected = "fastwithdraw.withdrawal.rejected"
	SubjectMessageInitiated   = "fastwithdraw.message.initiated"
	SubjectTxConfirmed        = "fastwithdraw.transaction.confirmed"
	SubjectTxDropped          = "fastwithdraw.transaction.dropped"
)

// LifecycleEvent is the JSON payload published on every subject.
type LifecycleEvent struct {
	Hash      string    `json:"hash"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits relayer lifecycle events over NATS. A nil *Publisher
// is valid and publishes nothing, so callers never need to branch on
// whether NATS is configured. Publish failures are logged, never
// propagated.
type Publisher struct {
	nc  *nats.Conn
	log *logrus.Entry
}

// Connect dials the NATS server. An empty URL returns a nil publisher.
func Connect(url string, logger *logrus.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:  nc,
		log: logger.WithField("module", "events"),
	}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.nc.Close()
}

func (p *Publisher) publish(subject, hash, reason string) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(LifecycleEvent{
		Hash:      hash,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		p.log.WithError(err).Error("Failed to encode lifecycle event")
		return
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		p.log.WithError(err).WithField("subject", subject).Error("Failed to publish lifecycle event")
	}
}

// WithdrawalApproved announces a withdrawal promoted to APPROVED.
func (p *Publisher) WithdrawalApproved(validiumTxHash string) {
	p.publish(SubjectWithdrawalApproved, validiumTxHash, "")
}

// WithdrawalRejected announces a withdrawal rejection with its reason.
func (p *Publisher) WithdrawalRejected(validiumTxHash, reason string) {
	p.publish(SubjectWithdrawalRejected, validiumTxHash, reason)
}

// MessageInitiated announces a message's first transaction record.
func (p *Publisher) MessageInitiated(messageHash string) {
	p.publish(SubjectMessageInitiated, messageHash, "")
}

// TransactionConfirmed announces a confirmed claim transaction.
func (p *Publisher) TransactionConfirmed(txHash string) {
	p.publish(SubjectTxConfirmed, txHash, "")
}

// TransactionDropped announces a dropped claim transaction.
func (p *Publisher) TransactionDropped(txHash string) {
	p.publish(SubjectTxDropped, txHash, "")
}
