// SPDX-License-Identifier: MIT

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediaflow_job_runs_total",
	Help: "Automation job runs by result.",
}, []string{"result"})
