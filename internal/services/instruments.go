package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// deadlineLateness is how late each presentation deadline was processed.
	deadlineLateness = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "focus_scheduler_deadline_lateness_seconds",
		Help:    "Delay between a presentation deadline and its processing",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})

	trialEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_trial_events_total",
		Help: "Trial events emitted by type",
	}, []string{"event_type"})

	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_responses_total",
		Help: "Recorded responses by live classification",
	}, []string{"outcome"})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focus_sessions_total",
		Help: "Finished sessions by result",
	}, []string{"result"})
)
