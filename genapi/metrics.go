package genapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generationsTotal counts generate calls by the status they answered with.
	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restyle_genapi_generations_total",
		Help: "Total number of generate requests by response status",
	}, []string{"status"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "restyle_genapi_generation_duration_seconds",
		Help:    "Time to answer generate requests by response status",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 3, 5, 10},
	}, []string{"status"})

	queueRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restyle_genapi_queue_rejections_total",
		Help: "Generate requests turned away because the worker queue was full",
	})
)
