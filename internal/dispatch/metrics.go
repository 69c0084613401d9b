package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

type metrics struct {
	calls     *prometheus.CounterVec
	retries   prometheus.Counter
	cacheHits prometheus.Counter
	inflight  prometheus.Gauge
	latency   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwise",
			Subsystem: "dispatch",
			Name:      "oracle_calls_total",
			Help:      "Oracle classification calls by outcome.",
		}, []string{"outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwise",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Oracle calls retried after a failure.",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwise",
			Subsystem: "dispatch",
			Name:      "cache_hits_total",
			Help:      "Units resolved from the classification cache or a coalesced call.",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pairwise",
			Subsystem: "dispatch",
			Name:      "inflight_calls",
			Help:      "Oracle calls currently in flight.",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pairwise",
			Subsystem: "dispatch",
			Name:      "oracle_call_seconds",
			Help:      "Oracle call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}
