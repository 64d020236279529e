package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ratepath",
		Name:      "chain_rpc_retries_total",
		Help:      "Retried JSON-RPC attempts (transport errors and 429 responses).",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratepath",
		Name:      "metadata_cache_hits_total",
		Help:      "Metadata cache hits by kind.",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratepath",
		Name:      "metadata_cache_misses_total",
		Help:      "Metadata cache misses by kind.",
	}, []string{"kind"})

	Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ratepath",
		Name:      "conversions_total",
		Help:      "Conversion requests by outcome.",
	}, []string{"status"})

	ConversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ratepath",
		Name:      "conversion_duration_seconds",
		Help:      "End to end conversion latency.",
		Buckets:   prometheus.DefBuckets,
	})
)

func Handler() http.Handler {
	h := promhttp.Handler()
	return h
}
