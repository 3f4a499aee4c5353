// SPDX-License-Identifier: MIT

// Package janitor owns deferred cleanup: purging soft-deleted recordings,
// expiring idle ones and dropping dead rows and tokens.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/fsutil"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/store"
)

// rowRetention keeps hard-deleted rows around for a day so operators can
// still answer "where did it go" before the row vanishes.
const rowRetention = 24 * time.Hour

// Janitor sweeps on an interval.
type Janitor struct {
	store          *store.Store
	layout         *paths.Layout
	clk            clock.Clock
	interval       time.Duration
	initializedTTL time.Duration
	logger         zerolog.Logger
}

// New wires a Janitor. initializedTTL is how long an idle INITIALIZED
// recording may wait before it is expired.
func New(st *store.Store, layout *paths.Layout, clk clock.Clock, interval, initializedTTL time.Duration) *Janitor {
	return &Janitor{
		store:          st,
		layout:         layout,
		clk:            clk,
		interval:       interval,
		initializedTTL: initializedTTL,
		logger:         log.WithComponent("janitor"),
	}
}

// Run sweeps until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info().Dur("interval", j.interval).Msg("janitor started")
	for {
		if err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("sweep failed")
		}
		timer := j.clk.NewTimer(j.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

// Sweep runs all cleanup passes once.
func (j *Janitor) Sweep(ctx context.Context) error {
	if err := j.purgeSoftDeleted(ctx); err != nil {
		return err
	}
	if err := j.expireIdle(ctx); err != nil {
		return err
	}
	now := j.clk.Now()
	if n, err := j.store.PurgeHardDeletedRows(ctx, now.Add(-rowRetention)); err != nil {
		return err
	} else if n > 0 {
		j.logger.Info().Int64("rows", n).Msg("hard-deleted rows purged")
	}
	if n, err := j.store.DeleteExpiredTokens(ctx, now); err != nil {
		return err
	} else if n > 0 {
		j.logger.Debug().Int64("tokens", n).Msg("expired tokens dropped")
	}
	return nil
}

// purgeSoftDeleted removes the files of recordings whose grace period ended,
// then flips them to hard_deleted. Files go first: a crash between the two
// steps re-runs the (idempotent) file removal on the next sweep.
func (j *Janitor) purgeSoftDeleted(ctx context.Context) error {
	due, err := j.store.ListSoftDeletedDue(ctx, j.clk.Now())
	if err != nil {
		return err
	}
	for _, rec := range due {
		user, err := j.store.GetUser(ctx, rec.UserID)
		if err != nil {
			return err
		}
		dir, err := j.layout.RecordingDir(user.Slug, rec.ID)
		if err != nil {
			j.logger.Error().Err(err).Str(log.FieldRecordingID, rec.ID).Msg("refusing to purge unsafe path")
			continue
		}
		if err := fsutil.RemoveDir(dir); err != nil {
			j.logger.Error().Err(err).Str(log.FieldPath, dir).Msg("purging recording files failed")
			continue // retried next sweep
		}
		if err := j.store.MarkHardDeleted(ctx, rec.ID); err != nil {
			return err
		}
		purgedRecordings.Inc()
		j.logger.Info().
			Str(log.FieldRecordingID, rec.ID).
			Str(log.FieldReason, rec.DeletionReason).
			Msg("recording hard-deleted")
	}
	return nil
}

// expireIdle flips INITIALIZED recordings that never started downloading to
// EXPIRED once their TTL passes. Expired recordings can be re-discovered only
// after deletion; the row keeps the history.
func (j *Janitor) expireIdle(ctx context.Context) error {
	if j.initializedTTL <= 0 {
		return nil
	}
	now := j.clk.Now()
	idle, err := j.store.ListInitializedBefore(ctx, now.Add(-j.initializedTTL))
	if err != nil {
		return err
	}
	for _, rec := range idle {
		// Only recordings that never entered the pipeline expire.
		if rec.PipelineStartedAt != nil {
			continue
		}
		// A per-recording expire_at extends the global TTL.
		if rec.ExpireAt != nil && rec.ExpireAt.After(now) {
			continue
		}
		completedAt := now
		if _, err := j.store.UpdateRecording(ctx, rec.ID, func(r *model.Recording) error {
			r.Status = model.StatusExpired
			r.PipelineCompletedAt = &completedAt
			if r.PipelineStartedAt != nil {
				r.PipelineDurationSecs = completedAt.Sub(*r.PipelineStartedAt).Seconds()
			}
			return nil
		}); err != nil {
			return err
		}
		expiredRecordings.Inc()
		j.logger.Info().Str(log.FieldRecordingID, rec.ID).Msg("idle recording expired")
	}
	return nil
}
