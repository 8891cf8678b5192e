package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "provider",
		Name:      "generate_total",
		Help:      "Generation attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trekassist",
		Subsystem: "provider",
		Name:      "generate_duration_seconds",
		Help:      "Generation call latency by provider.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	}, []string{"provider"})

	providerHealthState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trekassist",
		Subsystem: "provider",
		Name:      "health_state",
		Help:      "0 healthy, 1 cooldown, 2 throttled, 3 dead.",
	}, []string{"provider"})
)
