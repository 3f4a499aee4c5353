// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
	"github.com/ManuGH/mediaflow/internal/pipeline/executor"
	"github.com/ManuGH/mediaflow/internal/store"
)

// listLimit bounds how many recordings one pass picks up.
const listLimit = 256

// Orchestrator advances active recordings through their stages.
type Orchestrator struct {
	store    *store.Store
	executor *executor.Executor
	layout   *paths.Layout
	clk      clock.Clock
	workers  int
	tick     time.Duration
	logger   zerolog.Logger
}

// New wires an Orchestrator. workers bounds how many recordings advance
// concurrently in one pass.
func New(st *store.Store, ex *executor.Executor, layout *paths.Layout, clk clock.Clock,
	workers int, tick time.Duration) *Orchestrator {

	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:    st,
		executor: ex,
		layout:   layout,
		clk:      clk,
		workers:  workers,
		tick:     tick,
		logger:   log.WithComponent("worker"),
	}
}

// Run loops passes until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().Int("workers", o.workers).Dur("tick", o.tick).Msg("orchestrator started")
	for {
		if err := o.Pass(ctx); err != nil && ctx.Err() == nil {
			o.logger.Error().Err(err).Msg("orchestration pass failed")
		}
		timer := o.clk.NewTimer(o.tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

// Pass advances every eligible recording once. Exported so the service can
// trigger an immediate pass after enqueueing work.
func (o *Orchestrator) Pass(ctx context.Context) error {
	recs, err := o.store.ListActiveForOrchestration(ctx, listLimit)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, rec := range recs {
		rec := rec
		if rec.BlankRecord || !rec.IsMapped {
			continue
		}
		g.Go(func() error {
			if err := o.processRecording(gctx, rec.ID); err != nil && gctx.Err() == nil {
				o.logger.Error().Err(err).Str(log.FieldRecordingID, rec.ID).Msg("recording pass failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessRecording advances a single recording to its next resting point.
// Exported for targeted triggers and tests.
func (o *Orchestrator) ProcessRecording(ctx context.Context, recordingID string) error {
	return o.processRecording(ctx, recordingID)
}

func (o *Orchestrator) processRecording(ctx context.Context, recordingID string) error {
	rec, err := o.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec.OnPause || rec.Failed || rec.DeleteState != model.DeleteActive || rec.Status.IsTerminal() {
		return nil
	}

	user, err := o.store.GetUser(ctx, rec.UserID)
	if err != nil {
		return err
	}
	meta, err := o.store.GetSourceMetadata(ctx, rec.ID)
	if err != nil && !model.IsKind(err, model.KindNotFound) {
		return err
	}
	files, err := o.layout.Files(user.Slug, rec.ID)
	if err != nil {
		return err
	}

	if rec.PipelineStartedAt == nil {
		now := o.clk.Now()
		if rec, err = o.store.UpdateRecording(ctx, rec.ID, func(r *model.Recording) error {
			r.PipelineStartedAt = &now
			r.LocalVideoPath = files.SourceVideo
			r.ProcessedVideoPath = files.ProcessedVideo
			r.ProcessedAudioPath = files.ProcessedAudio
			r.TranscriptionDir = files.TranscriptionDir
			return nil
		}); err != nil {
			return err
		}
	}

	required := RequiredStages(rec.Preferences)
	if err := o.ensureTargets(ctx, rec); err != nil {
		return err
	}

	task := &exec.Task{Recording: rec, User: user, Meta: meta, Files: files, Prefs: rec.Preferences}
	logger := o.logger.With().
		Str(log.FieldRecordingID, rec.ID).
		Str(log.FieldUserID, user.ID).
		Logger()

	for _, stage := range required {
		// A pause or deletion request parks the recording between stages.
		fresh, err := o.store.GetRecording(ctx, rec.ID)
		if err != nil {
			return err
		}
		if fresh.OnPause || fresh.Failed || fresh.DeleteState != model.DeleteActive {
			logger.Info().Str(log.FieldStage, string(stage)).Msg("pipeline parked")
			return nil
		}
		task.Recording = fresh

		st, err := o.store.GetStage(ctx, rec.ID, stage)
		if err == nil && st.State.IsTerminal() && st.State != model.StageFailed {
			continue
		}
		if err != nil && !model.IsKind(err, model.KindNotFound) {
			return err
		}

		outcome, err := o.executor.ExecuteStage(ctx, task, stage)
		if err != nil {
			return err
		}
		if err := o.syncStatus(ctx, rec.ID, required); err != nil {
			return err
		}
		switch outcome {
		case executor.OutcomeCompleted, executor.OutcomeSkipped:
			continue
		case executor.OutcomeFailed:
			recordingsFailed.Inc()
			return nil
		default: // deferred or conflict; pick it up next pass
			return nil
		}
	}

	return o.finish(ctx, &logger, rec.ID, required)
}

// finish stamps completion once every required stage is done.
func (o *Orchestrator) finish(ctx context.Context, logger *zerolog.Logger, recordingID string, required []model.StageType) error {
	stages, err := o.store.ListStages(ctx, recordingID)
	if err != nil {
		return err
	}
	if DeriveStatus(required, stages) != model.StatusReady {
		return nil
	}
	now := o.clk.Now()
	_, err = o.store.UpdateRecording(ctx, recordingID, func(r *model.Recording) error {
		if r.Status == model.StatusReady && r.PipelineCompletedAt != nil {
			return nil
		}
		r.Status = model.StatusReady
		r.PipelineCompletedAt = &now
		if r.PipelineStartedAt != nil {
			r.PipelineDurationSecs = now.Sub(*r.PipelineStartedAt).Seconds()
		}
		return nil
	})
	if err != nil {
		return err
	}
	recordingsReady.Inc()
	logger.Info().Str(log.FieldNewState, string(model.StatusReady)).Msg("pipeline finished")
	return nil
}

// syncStatus rederives and persists the aggregate status. Failed recordings
// keep the rollback status written by the executor.
func (o *Orchestrator) syncStatus(ctx context.Context, recordingID string, required []model.StageType) error {
	stages, err := o.store.ListStages(ctx, recordingID)
	if err != nil {
		return err
	}
	derived := DeriveStatus(required, stages)
	_, err = o.store.UpdateRecording(ctx, recordingID, func(r *model.Recording) error {
		if r.Failed || r.Status.IsTerminal() {
			return nil
		}
		r.Status = derived
		return nil
	})
	return err
}

// ensureTargets materialises the output target rows named by the frozen
// output config so upload state is tracked per platform.
func (o *Orchestrator) ensureTargets(ctx context.Context, rec *model.Recording) error {
	raw, ok := rec.Output["targets"].([]any)
	if !ok {
		return nil
	}
	for _, entry := range raw {
		var platform model.Platform
		var presetID *int64
		switch v := entry.(type) {
		case string:
			platform = model.Platform(v)
		case model.JSON:
			name, _ := v["platform"].(string)
			platform = model.Platform(name)
			if id, ok := v["preset_id"].(float64); ok {
				n := int64(id)
				presetID = &n
			}
		default:
			continue
		}
		if platform == "" {
			continue
		}
		if err := o.store.EnsureTarget(ctx, rec.ID, platform, presetID); err != nil {
			return err
		}
	}
	return nil
}
