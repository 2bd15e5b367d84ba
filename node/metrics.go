package node

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "node"
)

// Metrics contains all metrics exposed by this package.
type Metrics struct {
	Height   metrics.Gauge // Height of the chain
	NumTxs   metrics.Gauge // Number of transactions in the latest block
	TotalTxs metrics.Gauge // Total number of transactions

	BlockProductionDuration metrics.Histogram // Seconds spent producing a block

	ForkCacheHits   metrics.Gauge // Fork cache hit count
	ForkCacheMisses metrics.Gauge // Fork cache miss count
}

// PrometheusMetrics returns Metrics built using Prometheus client library
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}

	m := &Metrics{}

	m.Height = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "height",
		Help:      "Height of the chain.",
	}, labels).With(labelsAndValues...)

	m.NumTxs = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "num_txs",
		Help:      "Number of transactions in the latest block.",
	}, labels).With(labelsAndValues...)

	m.TotalTxs = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "total_txs",
		Help:      "Total number of transactions.",
	}, labels).With(labelsAndValues...)

	m.BlockProductionDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "block_production_duration_seconds",
		Help:      "Time spent producing a block in seconds.",
		Buckets:   stdprometheus.ExponentialBuckets(0.001, 2, 12),
	}, labels).With(labelsAndValues...)

	m.ForkCacheHits = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "fork_cache_hits",
		Help:      "Number of fork cache hits.",
	}, labels).With(labelsAndValues...)

	m.ForkCacheMisses = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "fork_cache_misses",
		Help:      "Number of fork cache misses.",
	}, labels).With(labelsAndValues...)

	return m
}

// NopMetrics returns no-op Metrics
func NopMetrics() *Metrics {
	return &Metrics{
		Height:   discard.NewGauge(),
		NumTxs:   discard.NewGauge(),
		TotalTxs: discard.NewGauge(),

		BlockProductionDuration: discard.NewHistogram(),

		ForkCacheHits:   discard.NewGauge(),
		ForkCacheMisses: discard.NewGauge(),
	}
}
