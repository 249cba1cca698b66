package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the core marketplace counters. All methods are nil-safe so
// services can treat metrics as optional.
type Metrics struct {
	bidsAccepted prometheus.Counter
	bidsRejected *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	batchRuns    *prometheus.CounterVec
	lockWait     prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bidsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadex_bids_accepted_total",
			Help: "Bids accepted by the bid acceptance protocol.",
		}),
		bidsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadex_bids_rejected_total",
			Help: "Bids rejected, labeled by rejection reason.",
		}, []string{"reason"}),
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadex_settlements_total",
			Help: "Auction settlements, labeled by outcome.",
		}, []string{"outcome"}),
		batchRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadex_batch_runs_total",
			Help: "Batch formation runs, labeled by outcome.",
		}, []string{"outcome"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadex_auction_lock_wait_seconds",
			Help:    "Time spent waiting on the per-auction lock.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncBidAccepted() {
	if m == nil {
		return
	}
	m.bidsAccepted.Inc()
}

func (m *Metrics) IncBidRejected(reason string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncBatchRun(outcome string) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
