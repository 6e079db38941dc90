package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engine
var (
	EngineSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_sequence",
		Help: "Last incremental sequence number assigned",
	})
	EngineRestingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_resting_orders",
		Help: "Orders currently resting in the book",
	})
	EngineTradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_trades_total",
		Help: "Total fills executed",
	})
	EngineTradedQty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_traded_qty_total",
		Help: "Total quantity executed",
	})
	EngineCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_commands_total",
		Help: "Commands processed by the engine actor",
	}, []string{"type", "result"})
	EngineMailboxFull = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_mailbox_full_total",
		Help: "Commands rejected because the mailbox was full",
	})
)

// feed
var (
	FeedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_messages_total",
		Help: "Feed messages published, by kind (inc/rec)",
	}, []string{"kind"})
	FeedPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_publish_errors_total",
		Help: "Failed feed publishes",
	}, []string{"kind"})
	FeedQueueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_queue_dropped_total",
		Help: "Messages dropped from a full feed queue (oldest first)",
	}, []string{"queue"})
	FeedQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_queue_depth",
		Help: "Messages waiting in a feed queue",
	}, []string{"queue"})
)

// recovery
var (
	RecoverySnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_snapshots_total",
		Help: "Recovery snapshots published",
	})
	RecoveryGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_gaps_total",
		Help: "Sequence gaps seen by the aggregator",
	})
	RecoveryLastApplied = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recovery_last_applied_seq",
		Help: "Sequence of the newest message folded into the replica",
	})
	RecoverySessionResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_session_resets_total",
		Help: "Replica resets caused by a new engine session",
	})
)
