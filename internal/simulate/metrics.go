package simulate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synthlik_simulation_batch_duration_seconds",
		Help:    "Wall time to simulate and summarize one parameter batch",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"model"})

	simulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_simulations_total",
		Help: "Total simulator invocations",
	}, []string{"model"})

	rowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_simulation_rows_dropped_total",
		Help: "Simulation rows removed before regression",
	}, []string{"reason"})
)
