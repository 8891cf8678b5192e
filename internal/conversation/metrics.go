package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "conversation",
		Name:      "sessions_created_total",
		Help:      "Sessions created.",
	})

	messagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "conversation",
		Name:      "messages_total",
		Help:      "Messages appended by role.",
	}, []string{"role"})

	escalations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "conversation",
		Name:      "escalations_total",
		Help:      "Sessions handed to a human agent.",
	})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trekassist",
		Subsystem: "conversation",
		Name:      "store_errors_total",
		Help:      "Session store failures by operation.",
	}, []string{"op"})
)
