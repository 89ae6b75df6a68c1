// Package metrics exposes the handful of Prometheus collectors this module
// wires in to answer spec §9's open question about MAX_RETRIES exhaustion
// ("Implementations should expose a metric rather than silence") and to
// give operators visibility into vote outcomes, lock pressure, and fsync
// cost. Grounded on github.com/prometheus/client_golang, the dependency
// both sushant-115-gojodb and sa6mwa-lockd carry for the same purpose.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordinator collects metrics emitted by the coordinator state machine.
type Coordinator struct {
	TransactionsLeaked prometheus.Counter
	Votes              *prometheus.CounterVec
	Decisions          *prometheus.CounterVec
	FsyncSeconds       prometheus.Histogram
}

// NewCoordinator registers the coordinator's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions across instances
// within the same process.
func NewCoordinator(reg prometheus.Registerer) *Coordinator {
	factory := promauto.With(reg)
	return &Coordinator{
		TransactionsLeaked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "twopc",
			Subsystem: "coordinator",
			Name:      "transactions_leaked_total",
			Help:      "Transactions that exhausted MAX_RETRIES in AWAITING_ACKS without collecting every ack.",
		}),
		Votes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twopc",
			Subsystem: "coordinator",
			Name:      "votes_total",
			Help:      "Votes received during PREPARING, labeled by result.",
		}, []string{"result"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twopc",
			Subsystem: "coordinator",
			Name:      "decisions_total",
			Help:      "Decisions reached, labeled by outcome.",
		}, []string{"outcome"}),
		FsyncSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "twopc",
			Subsystem: "coordinator",
			Name:      "wal_fsync_seconds",
			Help:      "Latency of WAL fsync calls on the coordinator.",
		}),
	}
}

// Participant collects metrics emitted by the participant state machine.
type Participant struct {
	LockedFiles  prometheus.Gauge
	Votes        *prometheus.CounterVec
	FsyncSeconds prometheus.Histogram
}

// NewParticipant registers the participant's collectors against reg.
func NewParticipant(reg prometheus.Registerer) *Participant {
	factory := promauto.With(reg)
	return &Participant{
		LockedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "twopc",
			Subsystem: "participant",
			Name:      "locked_files",
			Help:      "Number of source file paths currently held by a staged transaction.",
		}),
		Votes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twopc",
			Subsystem: "participant",
			Name:      "votes_total",
			Help:      "Votes cast, labeled by result.",
		}, []string{"result"}),
		FsyncSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "twopc",
			Subsystem: "participant",
			Name:      "wal_fsync_seconds",
			Help:      "Latency of WAL fsync calls on the participant.",
		}),
	}
}
