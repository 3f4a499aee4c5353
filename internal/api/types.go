// SPDX-License-Identifier: MIT

package api

import (
	"time"

	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/quota"
)

type jobRequest struct {
	Name               string         `json:"name"`
	TemplateIDs        []int64        `json:"template_ids,omitempty"`
	Schedule           model.Schedule `json:"schedule"`
	SyncDays           int            `json:"sync_days"`
	Filters            model.JSON     `json:"filters,omitempty"`
	ProcessingOverride model.JSON     `json:"processing_override,omitempty"`
	IsActive           bool           `json:"is_active"`
}

func (p jobRequest) toModel(userID string) *model.AutomationJob {
	return &model.AutomationJob{
		UserID:             userID,
		Name:               p.Name,
		TemplateIDs:        p.TemplateIDs,
		Schedule:           p.Schedule,
		Sync:               model.SyncConfig{SyncDays: p.SyncDays},
		Filters:            p.Filters,
		ProcessingOverride: p.ProcessingOverride,
		IsActive:           p.IsActive,
	}
}

type jobResponse struct {
	ID                 int64          `json:"id"`
	Name               string         `json:"name"`
	TemplateIDs        []int64        `json:"template_ids,omitempty"`
	Schedule           model.Schedule `json:"schedule"`
	SyncDays           int            `json:"sync_days"`
	Filters            model.JSON     `json:"filters,omitempty"`
	ProcessingOverride model.JSON     `json:"processing_override,omitempty"`
	IsActive           bool           `json:"is_active"`
	LastRunAt          *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt          *time.Time     `json:"next_run_at,omitempty"`
	RunCount           int            `json:"run_count"`
	CreatedAt          time.Time      `json:"created_at"`
}

func toJobResponse(j *model.AutomationJob) jobResponse {
	return jobResponse{
		ID:                 j.ID,
		Name:               j.Name,
		TemplateIDs:        j.TemplateIDs,
		Schedule:           j.Schedule,
		SyncDays:           j.Sync.SyncDays,
		Filters:            j.Filters,
		ProcessingOverride: j.ProcessingOverride,
		IsActive:           j.IsActive,
		LastRunAt:          j.LastRunAt,
		NextRunAt:          j.NextRunAt,
		RunCount:           j.RunCount,
		CreatedAt:          j.CreatedAt,
	}
}

type recordingResponse struct {
	ID            string     `json:"id"`
	InputSourceID *int64     `json:"input_source_id,omitempty"`
	TemplateID    *int64     `json:"template_id,omitempty"`
	DisplayName   string     `json:"display_name"`
	StartTime     time.Time  `json:"start_time"`
	DurationSecs  float64    `json:"duration_seconds"`
	Status        string     `json:"status"`
	IsMapped      bool       `json:"is_mapped"`
	BlankRecord   bool       `json:"blank_record"`
	DeleteState   string     `json:"delete_state"`
	OnPause       bool       `json:"on_pause"`
	Failed        bool       `json:"failed"`
	FailedReason  string     `json:"failed_reason,omitempty"`
	FailedAtStage string     `json:"failed_at_stage,omitempty"`
	RetryCount    int        `json:"retry_count"`

	PipelineStartedAt    *time.Time `json:"pipeline_started_at,omitempty"`
	PipelineCompletedAt  *time.Time `json:"pipeline_completed_at,omitempty"`
	PipelineDurationSecs float64    `json:"pipeline_duration_seconds,omitempty"`

	Preferences model.JSON `json:"preferences,omitempty"`
	Output      model.JSON `json:"output,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecordingResponse(rec *model.Recording) recordingResponse {
	return recordingResponse{
		ID:            rec.ID,
		InputSourceID: rec.InputSourceID,
		TemplateID:    rec.TemplateID,
		DisplayName:   rec.DisplayName,
		StartTime:     rec.StartTime,
		DurationSecs:  rec.DurationSecs,
		Status:        string(rec.Status),
		IsMapped:      rec.IsMapped,
		BlankRecord:   rec.BlankRecord,
		DeleteState:   string(rec.DeleteState),
		OnPause:       rec.OnPause,
		Failed:        rec.Failed,
		FailedReason:  rec.FailedReason,
		FailedAtStage: rec.FailedAtStage,
		RetryCount:    rec.RetryCount,

		PipelineStartedAt:    rec.PipelineStartedAt,
		PipelineCompletedAt:  rec.PipelineCompletedAt,
		PipelineDurationSecs: rec.PipelineDurationSecs,

		Preferences: rec.Preferences,
		Output:      rec.Output,

		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type stageResponse struct {
	Stage        string     `json:"stage"`
	State        string     `json:"state"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RetryCount   int        `json:"retry_count"`
	SkipReason   string     `json:"skip_reason,omitempty"`
	FailedReason string     `json:"failed_reason,omitempty"`
}

func toStageResponses(stages []*model.ProcessingStage) []stageResponse {
	out := make([]stageResponse, 0, len(stages))
	for _, st := range stages {
		out = append(out, stageResponse{
			Stage:        string(st.Type),
			State:        string(st.State),
			StartedAt:    st.StartedAt,
			CompletedAt:  st.CompletedAt,
			RetryCount:   st.RetryCount,
			SkipReason:   st.SkipReason,
			FailedReason: st.FailedReason,
		})
	}
	return out
}

type quotaLimits struct {
	MaxRecordingsPerMonth      *int `json:"max_recordings_per_month"`
	MaxStorageGB               *int `json:"max_storage_gb"`
	MaxConcurrentTasks         *int `json:"max_concurrent_tasks"`
	MaxAutomationJobs          *int `json:"max_automation_jobs"`
	MinAutomationIntervalHours *int `json:"min_automation_interval_hours"`
}

type quotaResponse struct {
	Limits          quotaLimits `json:"limits"`
	RecordingsUsed  int         `json:"recordings_used"`
	StorageBytes    int64       `json:"storage_bytes"`
	ConcurrentTasks int         `json:"concurrent_tasks"`
	ActiveJobs      int         `json:"active_jobs"`
}

// limitPtr turns a Limit into JSON where null means unlimited.
func limitPtr(l model.Limit) *int {
	if l.Unlimited {
		return nil
	}
	n := l.N
	return &n
}

func toQuotaResponse(st *quota.Status) quotaResponse {
	return quotaResponse{
		Limits: quotaLimits{
			MaxRecordingsPerMonth:      limitPtr(st.Effective.MaxRecordingsPerMonth),
			MaxStorageGB:               limitPtr(st.Effective.MaxStorageGB),
			MaxConcurrentTasks:         limitPtr(st.Effective.MaxConcurrentTasks),
			MaxAutomationJobs:          limitPtr(st.Effective.MaxAutomationJobs),
			MinAutomationIntervalHours: limitPtr(st.Effective.MinAutomationIntervalHours),
		},
		RecordingsUsed:  st.RecordingsUsed,
		StorageBytes:    st.StorageBytes,
		ConcurrentTasks: st.ConcurrentTasks,
		ActiveJobs:      st.ActiveJobs,
	}
}

type candidatePlanResponse struct {
	SourceID     int64  `json:"source_id"`
	SourceKey    string `json:"source_key"`
	DisplayName  string `json:"display_name"`
	TemplateID   *int64 `json:"template_id,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
	Blank        bool   `json:"blank"`
	Finalized    bool   `json:"finalized"`
}

type syncReportResponse struct {
	SourcesSynced  int                     `json:"sources_synced"`
	Candidates     int                     `json:"candidates"`
	Created        []string                `json:"created,omitempty"`
	WouldCreate    []candidatePlanResponse `json:"would_create,omitempty"`
	AlreadyKnown   int                     `json:"already_known"`
	Finalized      int                     `json:"finalized"`
	SkippedDeleted int                     `json:"skipped_deleted"`
	QuotaDenied    int                     `json:"quota_denied"`
	SourceErrors   map[int64]string        `json:"source_errors,omitempty"`
}

func toSyncReportResponse(rep *discovery.Report) syncReportResponse {
	plans := make([]candidatePlanResponse, 0, len(rep.WouldCreate))
	for _, p := range rep.WouldCreate {
		plans = append(plans, candidatePlanResponse{
			SourceID:     p.SourceID,
			SourceKey:    p.SourceKey,
			DisplayName:  p.DisplayName,
			TemplateID:   p.TemplateID,
			TemplateName: p.TemplateName,
			Blank:        p.Blank,
			Finalized:    p.Finalized,
		})
	}
	return syncReportResponse{
		SourcesSynced:  rep.SourcesSynced,
		Candidates:     rep.Candidates,
		Created:        rep.Created,
		WouldCreate:    plans,
		AlreadyKnown:   rep.AlreadyKnown,
		Finalized:      rep.Finalized,
		SkippedDeleted: rep.SkippedDeleted,
		QuotaDenied:    rep.QuotaDenied,
		SourceErrors:   rep.SourceErrors,
	}
}
