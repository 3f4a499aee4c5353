// SPDX-License-Identifier: MIT

package janitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purgedRecordings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaflow_recordings_purged_total",
		Help: "Soft-deleted recordings whose files were purged.",
	})

	expiredRecordings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaflow_recordings_expired_total",
		Help: "Idle recordings expired by TTL.",
	})
)
