// SPDX-License-Identifier: MIT

// Package service is the application facade: every outward-facing operation
// goes through here so validation, quota gates and scheduling bookkeeping
// cannot be bypassed by a transport.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/log"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/pipeline/executor"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/scheduler"
	"github.com/ManuGH/mediaflow/internal/store"
)

// PipelineTrigger pokes the orchestrator for an immediate pass.
type PipelineTrigger interface {
	Pass(ctx context.Context) error
}

// Service bundles the use cases of the platform.
type Service struct {
	store         *store.Store
	ledger        *quota.Ledger
	sched         *scheduler.Scheduler
	syncer        *discovery.Syncer
	pipeline      PipelineTrigger
	clk           clock.Clock
	softDeleteTTL time.Duration
	logger        zerolog.Logger
}

// New wires the Service. pipeline may be nil in tools that only read.
func New(st *store.Store, ledger *quota.Ledger, sched *scheduler.Scheduler, syncer *discovery.Syncer,
	pipeline PipelineTrigger, clk clock.Clock, softDeleteTTL time.Duration) *Service {

	return &Service{
		store:         st,
		ledger:        ledger,
		sched:         sched,
		syncer:        syncer,
		pipeline:      pipeline,
		clk:           clk,
		softDeleteTTL: softDeleteTTL,
		logger:        log.WithComponent("service"),
	}
}

// --- automation jobs ---

// CreateJob validates the schedule against the user's minimum interval,
// admits it against the job quota and stores it with its first fire time.
func (s *Service) CreateJob(ctx context.Context, job *model.AutomationJob) error {
	if err := s.validateJob(ctx, job); err != nil {
		return err
	}
	if err := s.ledger.CheckAutomationJobs(ctx, job.UserID); err != nil {
		return err
	}
	if job.IsActive {
		next, err := s.sched.NextRun(job, s.clk.Now())
		if err != nil {
			return err
		}
		job.NextRunAt = next
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return err
	}
	s.logger.Info().
		Int64(log.FieldJobID, job.ID).
		Str(log.FieldUserID, job.UserID).
		Msg("automation job created")
	return nil
}

// UpdateJob revalidates and rewrites a job, recomputing its next fire time.
func (s *Service) UpdateJob(ctx context.Context, job *model.AutomationJob) error {
	if err := s.validateJob(ctx, job); err != nil {
		return err
	}
	if job.IsActive {
		next, err := s.sched.NextRun(job, s.clk.Now())
		if err != nil {
			return err
		}
		job.NextRunAt = next
	} else {
		job.NextRunAt = nil
	}
	return s.store.UpdateJob(ctx, job)
}

// DeleteJob removes a job. Recordings it created are untouched.
func (s *Service) DeleteJob(ctx context.Context, userID string, id int64) error {
	return s.store.DeleteJob(ctx, userID, id)
}

// GetJob loads one job.
func (s *Service) GetJob(ctx context.Context, userID string, id int64) (*model.AutomationJob, error) {
	return s.store.GetJob(ctx, userID, id)
}

// ListJobs returns a user's jobs.
func (s *Service) ListJobs(ctx context.Context, userID string) ([]*model.AutomationJob, error) {
	return s.store.ListJobs(ctx, userID)
}

// TriggerJob runs a job now, outside its schedule, and pokes the pipeline.
func (s *Service) TriggerJob(ctx context.Context, userID string, id int64) error {
	job, err := s.store.GetJob(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.sched.RunJob(ctx, job, false); err != nil {
		return err
	}
	if s.pipeline != nil {
		return s.pipeline.Pass(ctx)
	}
	return nil
}

// DryRunJob runs the discovery pass of a job without side effects and
// returns what it would have done.
func (s *Service) DryRunJob(ctx context.Context, userID string, id int64) (*discovery.Report, error) {
	job, err := s.store.GetJob(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.syncer.Run(ctx, job, true)
}

func (s *Service) validateJob(ctx context.Context, job *model.AutomationJob) error {
	if job.Name == "" {
		return model.Validation("job name is required")
	}
	if job.Sync.SyncDays < 1 || job.Sync.SyncDays > 365 {
		return model.Validation("sync_days must be within 1..365")
	}
	minInterval, err := s.ledger.MinInterval(ctx, job.UserID)
	if err != nil {
		return err
	}
	return job.Schedule.Validate(minInterval)
}

// --- recordings ---

// GetRecording loads one recording scoped to its owner.
func (s *Service) GetRecording(ctx context.Context, userID, id string) (*model.Recording, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, model.NotFound("recording not found")
	}
	return rec, nil
}

// ListRecordings returns a user's recordings.
func (s *Service) ListRecordings(ctx context.Context, userID string) ([]*model.Recording, error) {
	return s.store.ListRecordingsByUser(ctx, userID)
}

// UpdateRecordingConfig deep-merges a preference patch into a recording.
// Terminal recordings are frozen.
func (s *Service) UpdateRecordingConfig(ctx context.Context, userID, id string, patch model.JSON) (*model.Recording, error) {
	if _, err := s.GetRecording(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		if rec.Status.IsTerminal() {
			return model.Conflict("recording is in a terminal state")
		}
		rec.Preferences = model.DeepMerge(rec.Preferences, patch)
		return nil
	})
}

// PauseRecording parks a recording between stages. Running stages finish
// their current attempt first.
func (s *Service) PauseRecording(ctx context.Context, userID, id string) error {
	if _, err := s.GetRecording(ctx, userID, id); err != nil {
		return err
	}
	now := s.clk.Now()
	_, err := s.store.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		if rec.Status.IsTerminal() {
			return model.Conflict("recording is in a terminal state")
		}
		if rec.OnPause {
			return nil
		}
		rec.OnPause = true
		rec.PauseRequestedAt = &now
		return nil
	})
	return err
}

// ResumeRecording unparks a recording and pokes the pipeline.
func (s *Service) ResumeRecording(ctx context.Context, userID, id string) error {
	if _, err := s.GetRecording(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.store.UpdateRecording(ctx, id, func(rec *model.Recording) error {
		rec.OnPause = false
		rec.PauseRequestedAt = nil
		return nil
	})
	if err != nil {
		return err
	}
	if s.pipeline != nil {
		return s.pipeline.Pass(ctx)
	}
	return nil
}

// DeleteRecording soft-deletes a recording; the janitor purges files after
// the grace period.
func (s *Service) DeleteRecording(ctx context.Context, userID, id, reason string) error {
	if _, err := s.GetRecording(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.SoftDeleteRecording(ctx, id, reason, s.softDeleteTTL); err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldRecordingID, id).
		Str(log.FieldReason, reason).
		Msg("recording soft-deleted")
	return nil
}

// RetryRecording clears the failure flag of a failed recording, rewinds the
// failed stage and pokes the pipeline.
func (s *Service) RetryRecording(ctx context.Context, userID, id string) error {
	rec, err := s.GetRecording(ctx, userID, id)
	if err != nil {
		return err
	}
	if !rec.Failed {
		return model.Conflict("recording is not failed")
	}
	rollback := model.StatusInitialized
	if stage, ok := model.StageFromActivity(rec.FailedAtStage); ok {
		if rb := executor.PolicyFor(stage).RollbackTo; rb != "" {
			rollback = rb
		}
		err := s.store.ResetStage(ctx, id, stage)
		if err != nil && !model.IsKind(err, model.KindNotFound) {
			return err
		}
	}
	if _, err := s.store.UpdateRecording(ctx, id, func(r *model.Recording) error {
		r.Failed = false
		r.FailedReason = ""
		r.FailedAtStage = ""
		// A fatal failure parked the recording on a terminal status and
		// closed the pipeline timing; reopen both.
		if r.Status.IsTerminal() {
			r.Status = rollback
		}
		r.PipelineCompletedAt = nil
		r.PipelineDurationSecs = 0
		return nil
	}); err != nil {
		return err
	}
	if s.pipeline != nil {
		return s.pipeline.Pass(ctx)
	}
	return nil
}

// --- quotas ---

// QuotaStatus reports a user's effective limits and live usage.
func (s *Service) QuotaStatus(ctx context.Context, userID string) (*quota.Status, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Snapshot(ctx, userID, user.Slug)
}
