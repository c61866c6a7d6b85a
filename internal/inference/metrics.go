package inference

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aiserver",
			Subsystem: "inference",
			Name:      "generations_total",
			Help:      "Total number of generations by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aiserver",
			Subsystem: "inference",
			Name:      "generation_duration_seconds",
			Help:      "Duration of generations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	generatedTokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aiserver",
			Subsystem: "inference",
			Name:      "tokens_total",
			Help:      "Total number of streamed token fragments",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, generatedTokensTotal)
}
