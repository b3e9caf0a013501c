package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sybl",
			Subsystem: "session",
			Name:      "heartbeats_total",
			Help:      "Alive messages echoed back to the server.",
		},
	)
	jobOffers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sybl",
			Subsystem: "session",
			Name:      "job_offers_total",
			Help:      "Job offers evaluated, by accept decision.",
		},
		[]string{"accepted"},
	)
	predictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sybl",
			Subsystem: "session",
			Name:      "predictions_total",
			Help:      "Prediction sets sent back to the server.",
		},
	)
	sessionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sybl",
			Subsystem: "session",
			Name:      "failures_total",
			Help:      "Fatal session errors, by stage.",
		},
		[]string{"stage"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(heartbeats, jobOffers, predictions, sessionFailures)
	})
}

func RecordHeartbeat() {
	RegisterMetrics()
	heartbeats.Inc()
}

func RecordJobOffer(accepted bool) {
	RegisterMetrics()
	jobOffers.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func RecordPredictions() {
	RegisterMetrics()
	predictions.Inc()
}

func RecordSessionFailure(stage string) {
	RegisterMetrics()
	sessionFailures.WithLabelValues(stage).Inc()
}
