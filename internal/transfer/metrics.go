package transfer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_transfers_total",
			Help: "Finished simulated transfers by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_transfer_duration_seconds",
			Help:    "Wall time of simulated transfers, animation included.",
			Buckets: []float64{0.5, 1, 1.5, 2, 3, 5, 10, 30},
		},
		[]string{"kind"},
	)
)

func observe(kind Kind, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	transfersTotal.WithLabelValues(string(kind), outcome).Inc()
	transferDuration.WithLabelValues(string(kind)).Observe(seconds)
}
