// Package metrics holds the Prometheus collectors of a feature store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000}

// Metrics is the collector set of one store.
type Metrics struct {
	TransactionsAcquired   prometheus.Counter
	TransactionsCommitted  prometheus.Counter
	TransactionsRolledBack prometheus.Counter
	LeasesReclaimed        prometheus.Counter
	AcquireWaitMs          prometheus.Histogram
	CommitDurationMs       prometheus.Histogram
	QueriesTotal           *prometheus.CounterVec
	Features               *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featurestore_transactions_acquired_total",
			Help: "Total number of transactions acquired",
		}),
		TransactionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featurestore_transactions_committed_total",
			Help: "Total number of committed transactions",
		}),
		TransactionsRolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featurestore_transactions_rolled_back_total",
			Help: "Total number of rolled back transactions",
		}),
		LeasesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "featurestore_leases_reclaimed_total",
			Help: "Total number of expired transaction leases forcibly reclaimed",
		}),
		AcquireWaitMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "featurestore_acquire_wait_ms",
			Help:    "Time spent waiting for the transaction slot in milliseconds",
			Buckets: durationBuckets,
		}),
		CommitDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "featurestore_commit_duration_ms",
			Help:    "Commit duration including index rebuild in milliseconds",
			Buckets: durationBuckets,
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "featurestore_queries_total",
			Help: "Total number of queries by feature type",
		}, []string{"type"}),
		Features: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "featurestore_features",
			Help: "Number of features in the published snapshot by feature type",
		}, []string{"type"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TransactionsAcquired,
			m.TransactionsCommitted,
			m.TransactionsRolledBack,
			m.LeasesReclaimed,
			m.AcquireWaitMs,
			m.CommitDurationMs,
			m.QueriesTotal,
			m.Features,
		)
	}
	return m
}

// ObserveSince records the milliseconds elapsed since start.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// Handler exposes the collectors of gatherer for scraping. A nil gatherer
// uses the default registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
