package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "embedding",
		Name:      "texts_total",
		Help:      "Texts embedded, by source.",
	}, []string{"source"})

	embedFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "embedding",
		Name:      "fallbacks_total",
		Help:      "Provider calls that fell back to the local embedder.",
	})

	embedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "embedding",
		Name:      "provider_duration_seconds",
		Help:      "External embedding call latency.",
		Buckets:   prometheus.DefBuckets,
	})
)
