package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters exposed on /metrics.
var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecheck_sessions_started_total",
		Help: "Verification sessions started.",
	})

	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecheck_sessions_completed_total",
		Help: "Verification sessions that reached attendance commit.",
	})

	SessionsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecheck_sessions_aborted_total",
		Help: "Verification sessions aborted before completion.",
	})

	ComplianceResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitecheck_ppe_results_total",
		Help: "PPE verdicts by outcome.",
	}, []string{"outcome"})

	FaceMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecheck_face_mismatches_total",
		Help: "Confident face matches that did not equal the claimed worker.",
	})
)
