// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CandidatesGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_candidates_generated_total",
			Help: "Total number of candidates proposed by the LLM",
		},
	)

	CandidatesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_candidates_accepted_total",
			Help: "Total number of candidates accepted and persisted",
		},
	)

	CandidatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_candidates_rejected_total",
			Help: "Total number of candidates rejected, by reason",
		},
		[]string{"reason"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_provider_calls_total",
			Help: "Total number of LLM completion calls, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_batch_duration_seconds",
			Help:    "Duration of discovery batches",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	ValidationScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_validation_score",
			Help:    "External validation scores of candidates",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)
