// SPDX-License-Identifier: MIT

// Package executor drives stage attempts: admission, retry policy, backoff,
// timing rows and failure bookkeeping around the exec actions.
package executor

import (
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// Policy fixes the retry behavior of one stage type.
type Policy struct {
	// MaxAttempts bounds the total number of attempts, first one included.
	MaxAttempts int

	// Backoff is the wait before retry n (1-based); the last entry repeats.
	Backoff []time.Duration

	// RollbackTo is the aggregate status the recording is rolled back to when
	// attempts are exhausted and the stage is not skippable.
	RollbackTo model.RecordingStatus
}

// Wait returns the backoff before the given retry (1-based).
func (p Policy) Wait(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	if retry > len(p.Backoff) {
		retry = len(p.Backoff)
	}
	return p.Backoff[retry-1]
}

// policies is the stage retry table. Downloads are retried hard because
// sources throttle; the optional enrichment stages give up quickly and skip.
var policies = map[model.StageType]Policy{
	model.StageDownload: {
		MaxAttempts: 10,
		Backoff: []time.Duration{
			3 * time.Second, 5 * time.Second, 10 * time.Second,
			20 * time.Second, 30 * time.Second,
		},
		RollbackTo: model.StatusInitialized,
	},
	model.StageTrim: {
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		RollbackTo:  model.StatusDownloaded,
	},
	model.StageTranscribe: {
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		RollbackTo:  model.StatusDownloaded,
	},
	model.StageTopics: {
		MaxAttempts: 2,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second},
	},
	model.StageSubtitles: {
		MaxAttempts: 2,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second},
	},
	model.StageUpload: {
		MaxAttempts: 5,
		Backoff: []time.Duration{
			10 * time.Second, 20 * time.Second, 40 * time.Second,
			80 * time.Second, 160 * time.Second,
		},
		// Uploads never cost the processed artifacts: the recording keeps
		// its PROCESSED status and targets can be retried manually.
		RollbackTo: model.StatusProcessed,
	},
}

// PolicyFor returns the retry policy of a stage type.
func PolicyFor(stage model.StageType) Policy {
	return policies[stage]
}
