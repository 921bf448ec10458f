package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Indexer
	BlocksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_blocks_indexed_total",
		Help: "Total number of validium blocks scanned for withdraw events",
	})

	LastProcessedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_last_processed_block",
		Help: "Highest validium block processed by the indexer (in memory)",
	})

	WithdrawalsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_withdrawals_recorded_total",
		Help: "Total number of withdrawal rows inserted by the indexer",
	})

	// Withdrawal processor
	WithdrawalsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_withdrawals_processed_total",
			Help: "Total number of withdrawals processed, by outcome",
		},
		[]string{"outcome"}, // approved / rejected
	)

	// Message processor
	MessagesInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_messages_initiated_total",
		Help: "Total number of messages flipped to INITIATED",
	})

	TransactionsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_transactions_broadcast_total",
		Help: "Total number of claim transactions broadcast to the host chain",
	})

	// Transaction processor
	TransactionsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_transactions_confirmed_total",
		Help: "Total number of claim transactions confirmed successful",
	})

	TransactionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_transactions_dropped_total",
		Help: "Total number of claim transactions detected as dropped",
	})

	TransactionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_transaction_retries_total",
		Help: "Total number of claim transactions re-submitted after a drop",
	})

	// Shared
	WorkerItemErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_worker_item_errors_total",
			Help: "Total number of per-item processing errors, by worker",
		},
		[]string{"worker"},
	)
)
