// SPDX-License-Identifier: MIT

package model

import "time"

// JSON is an opaque configuration or metadata blob. The core never interprets
// unknown keys; known sections are validated where they are consumed.
type JSON = map[string]any

// User is the tenant identity. Users are deactivated, never destroyed.
type User struct {
	ID            string // 26-char ULID
	Slug          int64  // monotonic sequence, used in storage paths
	Name          string
	Timezone      string
	Role          string
	CanTranscribe bool
	CanUpload     bool
	IsActive      bool
	CreatedAt     time.Time
}

// SubscriptionPlan is an admin-managed tier with default quotas.
type SubscriptionPlan struct {
	ID        int64
	Name      string
	Quotas    QuotaSet
	CreatedAt time.Time
}

// QuotaSet holds quota fields where nil means unlimited / not set.
type QuotaSet struct {
	MaxRecordingsPerMonth      *int `json:"max_recordings_per_month,omitempty"`
	MaxStorageGB               *int `json:"max_storage_gb,omitempty"`
	MaxConcurrentTasks         *int `json:"max_concurrent_tasks,omitempty"`
	MaxAutomationJobs          *int `json:"max_automation_jobs,omitempty"`
	MinAutomationIntervalHours *int `json:"min_automation_interval_hours,omitempty"`
}

// UserSubscription binds a user to a plan, optionally overriding quotas.
type UserSubscription struct {
	ID        int64
	UserID    string
	PlanID    int64
	Custom    QuotaSet // custom_* overrides; nil field falls through to plan
	CreatedAt time.Time
}

// QuotaUsage is the monthly counter row, one per (user, period).
// The concurrent-task gauge is deliberately not periodized; see quota package.
type QuotaUsage struct {
	UserID          string
	Period          int // YYYYMM
	RecordingsCount int
	OverageCostCents int64
	UpdatedAt       time.Time
}

// InputSource is a named source binding for discovery.
type InputSource struct {
	ID               int64
	UserID           string
	Name             string
	SourceType       SourceType
	CredentialHandle string // opaque; resolved outside the core
	Config           JSON
	LastSyncAt       *time.Time
	LastSyncError    string
	CreatedAt        time.Time
}

// OutputPreset is a named target binding.
type OutputPreset struct {
	ID               int64
	UserID           string
	Name             string
	Platform         Platform
	CredentialHandle string
	Metadata         JSON
	CreatedAt        time.Time
}

// MatchingRules is the rule section of a template. Rule kinds are ORed;
// values within one kind are also ORed (any match wins).
type MatchingRules struct {
	ExactMatches []string `json:"exact_matches,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Patterns     []string `json:"patterns,omitempty"`
	SourceIDs    []int64  `json:"source_ids,omitempty"`
}

// Empty reports whether no rule kind is populated.
func (r MatchingRules) Empty() bool {
	return len(r.ExactMatches) == 0 && len(r.Keywords) == 0 &&
		len(r.Patterns) == 0 && len(r.SourceIDs) == 0
}

// RecordingTemplate is a matcher plus processing spec.
type RecordingTemplate struct {
	ID               int64
	UserID           string
	Name             string
	Rules            MatchingRules
	ProcessingConfig JSON
	MetadataConfig   JSON
	OutputConfig     JSON
	IsDraft          bool
	IsActive         bool
	UsedCount        int
	LastUsedAt       *time.Time
	CreatedAt        time.Time
}

// SyncConfig controls the discovery window of an automation job.
type SyncConfig struct {
	SyncDays int `json:"sync_days"`
}

// AutomationJob is a scheduled application of templates against sources.
type AutomationJob struct {
	ID                 int64
	UserID             string
	Name               string
	TemplateIDs        []int64
	Schedule           Schedule
	Sync               SyncConfig
	Filters            JSON
	ProcessingOverride JSON
	IsActive           bool
	LastRunAt          *time.Time
	NextRunAt          *time.Time
	RunCount           int
	CreatedAt          time.Time
}

// Recording is the central entity tracked through the pipeline.
type Recording struct {
	ID            string // 26-char ULID
	UserID        string
	InputSourceID *int64
	TemplateID    *int64
	DisplayName   string
	StartTime     time.Time
	DurationSecs  float64
	Status        RecordingStatus
	IsMapped      bool
	BlankRecord   bool

	DeleteState    DeleteState
	SoftDeletedAt  *time.Time
	HardDeleteAt   *time.Time
	DeletionReason string
	ExpireAt       *time.Time

	OnPause          bool
	PauseRequestedAt *time.Time

	LocalVideoPath     string
	ProcessedVideoPath string
	ProcessedAudioPath string
	TranscriptionDir   string

	Failed        bool
	FailedReason  string
	FailedAtStage string
	RetryCount    int

	PipelineStartedAt     *time.Time
	PipelineCompletedAt   *time.Time
	PipelineDurationSecs  float64

	Preferences JSON // merged processing preferences (template + overrides)
	Output      JSON // frozen output_config from the template

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProcessingStage is one row per (recording, stage_type).
type ProcessingStage struct {
	ID           int64
	RecordingID  string
	Type         StageType
	State        StageState
	StartedAt    *time.Time
	CompletedAt  *time.Time
	RetryCount   int
	SkipReason   string
	FailedReason string
	Meta         JSON
}

// OutputTarget is one row per (recording, target_type).
type OutputTarget struct {
	ID          int64
	RecordingID string
	TargetType  Platform
	PresetID    *int64
	State       TargetState
	RemoteID    string
	RemoteURL   string
	Attempts    int
	Meta        JSON
}

// SourceMetadata carries adapter identity used for deduplication.
type SourceMetadata struct {
	ID          int64
	RecordingID string
	SourceType  SourceType
	SourceKey   string
	Raw         JSON
}

// StageTiming is the append-only analytics log. Rows are never rewritten
// once finalized.
type StageTiming struct {
	ID           int64
	RecordingID  string
	Stage        StageType
	Substep      string
	Attempt      int
	StartedAt    time.Time
	CompletedAt  *time.Time
	DurationSecs *float64
	Status       StageState
	ErrorMessage string
	Meta         JSON
}

// RefreshToken is an opaque session token stored in the core store.
type RefreshToken struct {
	ID        int64
	UserID    string
	Token     string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// CandidateRecording is what a SourceAdapter reports during discovery.
type CandidateRecording struct {
	SourceKey    string
	DisplayName  string
	StartTime    time.Time
	DurationSecs float64
	SizeBytes    int64
	Finalized    bool // false while the source is still producing the file
	Blank        bool // source classified the candidate as unprocessable
	Raw          JSON
}
