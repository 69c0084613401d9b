package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	iterations   *prometheus.CounterVec
	phaseSeconds *prometheus.HistogramVec
	runs         *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		iterations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwise",
			Subsystem: "controller",
			Name:      "iterations_total",
			Help:      "Phase executions by phase.",
		}, []string{"phase"}),
		phaseSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pairwise",
			Subsystem: "controller",
			Name:      "phase_seconds",
			Help:      "Phase execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwise",
			Subsystem: "controller",
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"outcome"}),
	}
}
