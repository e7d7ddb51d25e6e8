package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// attemptsTotal counts calls issued by executors, by result kind.
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restyle_executor_attempts_total",
		Help: "Total number of attempts by executor and result (success or error kind)",
	}, []string{"executor", "result"})

	// sequencesTotal counts finished Execute calls by outcome.
	sequencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restyle_executor_sequences_total",
		Help: "Total number of request sequences by executor and outcome",
	}, []string{"executor", "outcome"})

	retryDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restyle_executor_retry_delay_seconds",
		Help:    "Backoff delay scheduled before each retry",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"executor"})

	sequenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restyle_executor_sequence_duration_seconds",
		Help:    "Duration of request sequences by executor and outcome",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"executor", "outcome"})

	liveSequences = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "restyle_executor_live_sequences",
		Help: "Sequences currently in flight (0 or 1 per executor)",
	}, []string{"executor"})
)
