package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_sampler_steps_total",
		Help: "Sampler iterations completed",
	}, []string{"sampler"})

	acceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_sampler_accepted_total",
		Help: "Sampler iterations that moved the chain",
	}, []string{"sampler"})

	halvingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_sampler_halvings_total",
		Help: "Step halvings caused by invalid proposals",
	}, []string{"sampler"})

	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthlik_sampler_halving_exhausted_total",
		Help: "Steps that hit the halving cap and kept the current point",
	}, []string{"sampler"})
)

func observeStep(kind Kind, st *State) {
	k := string(kind)
	stepsTotal.WithLabelValues(k).Inc()
	if st.Accepted {
		acceptedTotal.WithLabelValues(k).Inc()
	}
	if st.Halvings > 0 {
		halvingsTotal.WithLabelValues(k).Add(float64(st.Halvings))
	}
	if st.HalvingExhausted {
		exhaustedTotal.WithLabelValues(k).Inc()
	}
}
