package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "assistant",
		Name:      "chat_total",
		Help:      "Chat turns by how the answer was produced.",
	}, []string{"path"})

	chatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "assistant",
		Name:      "chat_duration_seconds",
		Help:      "End-to-end chat latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	retrievedDocs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "assistant",
		Name:      "retrieved_documents",
		Help:      "Documents above the relevance threshold per turn.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8},
	})

	persistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "assistant",
		Name:      "persist_errors_total",
		Help:      "Turns whose conversation update failed to persist.",
	})
)

// Answer paths.
const (
	pathGenerated = "generated"
	pathCached    = "cached"
	pathTemplated = "missing_field"
	pathFallback  = "fallback"
)
