package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "networth"

var (
	// RPCRequests counts JSON-RPC round trips by chain, method and result.
	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "JSON-RPC round trips by chain, method and result.",
	}, []string{"chain_id", "method", "result"})

	// RPCBatchSize observes the number of calls per batch.
	RPCBatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_batch_size",
		Help:      "Number of eth_call entries per JSON-RPC batch.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"chain_id"})

	// PriceIndexRequests counts price index lookups by result.
	PriceIndexRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_index_requests_total",
		Help:      "Price index HTTP lookups by result.",
	}, []string{"result"})

	// ResolverOutcomes counts price resolutions by resolver kind and result.
	ResolverOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolver_outcomes_total",
		Help:      "Price resolutions by resolver kind and result.",
	}, []string{"kind", "result"})

	// CacheLookups counts refresh cache lookups by source and outcome (fresh, stale, miss).
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Refresh cache lookups by source and outcome.",
	}, []string{"source", "outcome"})

	// DedupShared counts callers that joined an in-flight request instead of issuing their own.
	DedupShared = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_shared_total",
		Help:      "Callers served by an already in-flight request.",
	}, []string{"source"})

	// AggregateTotalUSD exposes the latest total of each tracked sum.
	AggregateTotalUSD = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "aggregate_total_usd",
		Help:      "Latest USD total per tracked aggregate.",
	}, []string{"sum"})

	// AggregateComplete is 1 when every contributor of a tracked sum has settled.
	AggregateComplete = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "aggregate_complete",
		Help:      "1 when every contributor of the aggregate has settled.",
	}, []string{"sum"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers all collectors with the default registry.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RPCRequests,
			RPCBatchSize,
			PriceIndexRequests,
			ResolverOutcomes,
			CacheLookups,
			DedupShared,
			AggregateTotalUSD,
			AggregateComplete,
		)
	})
}

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
