package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "knowledge",
		Name:      "refresh_total",
		Help:      "Corpus refreshes by outcome.",
	}, []string{"outcome"})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "knowledge",
		Name:      "refresh_duration_seconds",
		Help:      "Corpus refresh latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	documentsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trekassist",
		Subsystem: "knowledge",
		Name:      "documents",
		Help:      "Indexed documents by type.",
	}, []string{"type"})

	reembedded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "knowledge",
		Name:      "reembedded_documents_total",
		Help:      "Documents whose embedding was recomputed.",
	})

	searchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "knowledge",
		Name:      "search_total",
		Help:      "Corpus searches by backend.",
	}, []string{"backend"})
)
