// SPDX-License-Identifier: MIT

package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/store"
)

// Outcome is what one ExecuteStage call produced.
type Outcome int

const (
	// OutcomeCompleted means the stage row is COMPLETED.
	OutcomeCompleted Outcome = iota
	// OutcomeSkipped means the stage row is SKIPPED.
	OutcomeSkipped
	// OutcomeDeferred means nothing ran; try again next tick (quota full,
	// pause or deletion observed mid-backoff).
	OutcomeDeferred
	// OutcomeConflict means another runner holds the stage.
	OutcomeConflict
	// OutcomeFailed means attempts are exhausted and the recording was
	// rolled back and marked failed.
	OutcomeFailed
)

// Executor runs stage attempts against the store. One ExecuteStage call
// owns the stage until it completes, skips, defers or exhausts its retries;
// backoff between attempts happens inside the call.
type Executor struct {
	store   *store.Store
	ledger  *quota.Ledger
	clk     clock.Clock
	actions map[model.StageType]exec.Action
	logger  zerolog.Logger
}

// New wires an Executor over the given action set.
func New(st *store.Store, ledger *quota.Ledger, clk clock.Clock, actions map[model.StageType]exec.Action) *Executor {
	return &Executor{
		store:   st,
		ledger:  ledger,
		clk:     clk,
		actions: actions,
		logger:  log.WithComponent("executor"),
	}
}

// ExecuteStage runs one stage of one recording to a decision point.
func (e *Executor) ExecuteStage(ctx context.Context, task *exec.Task, stage model.StageType) (Outcome, error) {
	action, ok := e.actions[stage]
	if !ok {
		return OutcomeDeferred, model.Invariant("no action registered for stage " + string(stage))
	}
	policy := PolicyFor(stage)
	logger := e.logger.With().
		Str(log.FieldRecordingID, task.Recording.ID).
		Str(log.FieldUserID, task.User.ID).
		Str(log.FieldStage, string(stage)).
		Logger()

	for {
		// Storage admission happens outside the BeginStage transaction:
		// usage is measured from disk, not from rows.
		if stage == model.StageDownload || stage == model.StageUpload {
			err := e.ledger.CheckStorage(ctx, task.User.ID, task.User.Slug, storageDemand(task, stage))
			if model.IsKind(err, model.KindQuotaDenied) {
				return e.denyStorage(ctx, &logger, task, stage, policy, err.Error())
			}
			if err != nil {
				return OutcomeDeferred, err
			}
		}

		limit, err := e.ledger.ConcurrentLimit(ctx, task.User.ID)
		if err != nil {
			return OutcomeDeferred, err
		}

		st, err := e.store.BeginStage(ctx, task.User.ID, task.Recording.ID, stage, policy.MaxAttempts, limit)
		switch {
		case errors.Is(err, store.ErrStageDone):
			if st.State == model.StageSkipped {
				return OutcomeSkipped, nil
			}
			return OutcomeCompleted, nil
		case model.IsKind(err, model.KindConflict):
			return OutcomeConflict, nil
		case model.IsKind(err, model.KindQuotaDenied):
			stageDeferred.WithLabelValues(string(stage)).Inc()
			logger.Debug().Msg("stage deferred on concurrency quota")
			return OutcomeDeferred, nil
		case model.IsKind(err, model.KindFatalExternal):
			// Retries were exhausted by a previous run.
			return e.exhaust(ctx, &logger, task, stage, policy, "retries exhausted", false)
		case err != nil:
			return OutcomeDeferred, err
		}

		outcome, done, err := e.attempt(ctx, &logger, action, task, stage, policy, st)
		if done || err != nil {
			return outcome, err
		}

		// Backoff, then re-check the recording before the next attempt so a
		// pause or deletion lands between attempts, not after all of them.
		if err := e.sleep(ctx, policy.Wait(st.RetryCount)); err != nil {
			return OutcomeDeferred, err
		}
		rec, err := e.store.GetRecording(ctx, task.Recording.ID)
		if err != nil {
			return OutcomeDeferred, err
		}
		if rec.OnPause || rec.DeleteState != model.DeleteActive {
			logger.Info().Msg("stage retry parked: recording paused or deleted")
			return OutcomeDeferred, nil
		}
		task.Recording = rec
	}
}

// attempt runs a single begun attempt. done=false means the caller should
// back off and retry.
func (e *Executor) attempt(ctx context.Context, logger *zerolog.Logger, action exec.Action,
	task *exec.Task, stage model.StageType, policy Policy, st *model.ProcessingStage) (Outcome, bool, error) {

	timing := &model.StageTiming{
		RecordingID: task.Recording.ID,
		Stage:       stage,
		Attempt:     st.RetryCount,
		StartedAt:   e.clk.Now(),
		Status:      model.StageInProgress,
	}
	if err := e.store.AppendStageTiming(ctx, timing); err != nil {
		return OutcomeDeferred, true, err
	}

	res, runErr := action.Run(ctx, task)
	now := e.clk.Now()
	stageAttempts.WithLabelValues(string(stage)).Inc()

	if runErr == nil {
		state := model.StageCompleted
		skipReason := ""
		if res.Skipped {
			state = model.StageSkipped
			skipReason = res.SkipReason
		}
		if err := e.store.FinishStage(ctx, task.User.ID, task.Recording.ID, stage, state, "", skipReason, res.Meta); err != nil {
			return OutcomeDeferred, true, err
		}
		if err := e.store.FinalizeStageTiming(ctx, timing.ID, now, state, ""); err != nil {
			return OutcomeDeferred, true, err
		}
		stageDuration.WithLabelValues(string(stage)).Observe(now.Sub(timing.StartedAt).Seconds())
		logger.Info().Int(log.FieldAttempt, st.RetryCount).Str(log.FieldNewState, string(state)).Msg("stage finished")
		if state == model.StageSkipped {
			return OutcomeSkipped, true, nil
		}
		return OutcomeCompleted, true, nil
	}

	reason := runErr.Error()
	stageFailures.WithLabelValues(string(stage), string(model.KindOf(runErr))).Inc()
	if err := e.store.FinishStage(ctx, task.User.ID, task.Recording.ID, stage, model.StageFailed, reason, "", nil); err != nil {
		return OutcomeDeferred, true, err
	}
	if err := e.store.FinalizeStageTiming(ctx, timing.ID, now, model.StageFailed, reason); err != nil {
		return OutcomeDeferred, true, err
	}
	logger.Warn().Int(log.FieldAttempt, st.RetryCount).Str(log.FieldReason, reason).Msg("stage attempt failed")

	retryable := model.IsKind(runErr, model.KindRetryableIO)
	if retryable && st.RetryCount < policy.MaxAttempts {
		return OutcomeDeferred, false, nil // back off and retry
	}
	outcome, err := e.exhaust(ctx, logger, task, stage, policy, reason, !retryable)
	return outcome, true, err
}

// exhaust resolves a stage that will not be retried: optional or tolerated
// stages are skipped. A fatal error marks the recording FAILED; exhausted
// retryable attempts roll the status back so a manual retry can resume.
func (e *Executor) exhaust(ctx context.Context, logger *zerolog.Logger, task *exec.Task,
	stage model.StageType, policy Policy, reason string, fatal bool) (Outcome, error) {

	if stage.Optional() || e.tolerated(task, stage) {
		if err := e.store.MarkStageSkipped(ctx, task.Recording.ID, stage, "failed: "+reason); err != nil {
			return OutcomeDeferred, err
		}
		logger.Info().Str(log.FieldReason, reason).Msg("stage skipped after exhausted retries")
		return OutcomeSkipped, nil
	}

	rollback := policy.RollbackTo
	if fatal {
		rollback = model.StatusFailed
	}
	if err := e.store.MarkFailure(ctx, task.Recording.ID, reason, stage.Activity(), rollback); err != nil {
		return OutcomeDeferred, err
	}
	recordingFailures.WithLabelValues(string(stage)).Inc()
	logger.Error().
		Str(log.FieldReason, reason).
		Str(log.FieldNewState, string(rollback)).
		Msg("recording failed")
	return OutcomeFailed, nil
}

// denyStorage resolves a storage-quota denial: the stage is skipped with the
// denial as its reason, and because DOWNLOAD and UPLOAD sit on the required
// path the recording stops advancing until the user frees space and retries.
func (e *Executor) denyStorage(ctx context.Context, logger *zerolog.Logger, task *exec.Task,
	stage model.StageType, policy Policy, reason string) (Outcome, error) {

	if err := e.store.MarkStageSkipped(ctx, task.Recording.ID, stage, reason); err != nil {
		return OutcomeDeferred, err
	}
	if err := e.store.MarkFailure(ctx, task.Recording.ID, reason, stage.Activity(), policy.RollbackTo); err != nil {
		return OutcomeDeferred, err
	}
	recordingFailures.WithLabelValues(string(stage)).Inc()
	logger.Warn().Str(log.FieldReason, reason).Msg("stage denied on storage quota")
	return OutcomeFailed, nil
}

// storageDemand estimates the bytes a stage is about to add under the user's
// subtree. Downloads use the size advertised by the source adapter when it
// reports one; other stages only need current usage to be within the limit.
func storageDemand(task *exec.Task, stage model.StageType) int64 {
	if stage != model.StageDownload || task.Meta == nil {
		return 0
	}
	switch v := task.Meta.Raw["size"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// tolerated reports whether the stage's preference section carries
// allow_errors for this recording.
func (e *Executor) tolerated(task *exec.Task, stage model.StageType) bool {
	if stage == model.StageTranscribe {
		return exec.AllowErrors(task.Prefs, "transcription")
	}
	return false
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := e.clk.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
