// Package metrics maintains the prometheus registry and the set of ledger
// metrics. A custom registry is used so only these metrics are exposed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry *prometheus.Registry
var auto promauto.Factory

func init() {
	registry = prometheus.NewRegistry()
	auto = promauto.With(registry)
}

// Registry returns the registry holding the ledger metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Ledger metrics.
var (
	BlocksMined = auto.NewCounter(prometheus.CounterOpts{
		Name: "powledger_blocks_mined_total",
		Help: "Total number of blocks mined and written to storage",
	})

	ChainLength = auto.NewGauge(prometheus.GaugeOpts{
		Name: "powledger_chain_length",
		Help: "Number of blocks in the chain including genesis",
	})

	MempoolTransactions = auto.NewGauge(prometheus.GaugeOpts{
		Name: "powledger_mempool_transactions",
		Help: "Number of transactions waiting to be mined",
	})

	MiningDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powledger_mining_duration_seconds",
		Help:    "Time spent finding a nonce for a block",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Web metrics.
var (
	Requests = auto.NewCounterVec(prometheus.CounterOpts{
		Name: "powledger_http_requests_total",
		Help: "Total number of http requests handled",
	}, []string{"method", "code"})

	Errors = auto.NewCounter(prometheus.CounterOpts{
		Name: "powledger_http_errors_total",
		Help: "Total number of http requests that returned an error",
	})

	Panics = auto.NewCounter(prometheus.CounterOpts{
		Name: "powledger_http_panics_total",
		Help: "Total number of panics recovered while handling http requests",
	})
)
