// SPDX-License-Identifier: MIT

package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaflow_stage_attempts_total",
		Help: "Stage attempts by stage type.",
	}, []string{"stage"})

	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaflow_stage_failures_total",
		Help: "Failed stage attempts by stage type and error kind.",
	}, []string{"stage", "kind"})

	stageDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaflow_stage_deferred_total",
		Help: "Stage admissions deferred on the concurrency quota.",
	}, []string{"stage"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaflow_stage_duration_seconds",
		Help:    "Duration of successful stage attempts.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"stage"})

	recordingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaflow_recording_failures_total",
		Help: "Recordings failed after exhausting stage retries.",
	}, []string{"stage"})
)
