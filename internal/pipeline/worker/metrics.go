// SPDX-License-Identifier: MIT

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordingsReady = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaflow_recordings_ready_total",
		Help: "Recordings that reached READY.",
	})

	recordingsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaflow_recordings_pipeline_failed_total",
		Help: "Recordings that failed during orchestration.",
	})
)
