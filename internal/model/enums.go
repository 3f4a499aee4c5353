// SPDX-License-Identifier: MIT

package model

// RecordingStatus is the aggregate pipeline state of a recording. It is
// derived from the stage rows and deletion fields, never written free-hand.
type RecordingStatus string

const (
	StatusPendingSource RecordingStatus = "PENDING_SOURCE"
	StatusInitialized   RecordingStatus = "INITIALIZED"
	StatusDownloading   RecordingStatus = "DOWNLOADING"
	StatusDownloaded    RecordingStatus = "DOWNLOADED"
	StatusProcessing    RecordingStatus = "PROCESSING"
	StatusProcessed     RecordingStatus = "PROCESSED"
	StatusUploading     RecordingStatus = "UPLOADING"
	StatusReady         RecordingStatus = "READY"
	StatusFailed        RecordingStatus = "FAILED"
	StatusExpired       RecordingStatus = "EXPIRED"
	StatusSkipped       RecordingStatus = "SKIPPED"
)

// IsTerminal returns true if the status is a final state.
func (s RecordingStatus) IsTerminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusExpired, StatusSkipped:
		return true
	}
	return false
}

// DeleteState is the logical deletion lifecycle of a recording.
type DeleteState string

const (
	DeleteActive      DeleteState = "active"
	DeleteSoftDeleted DeleteState = "soft_deleted"
	DeleteHardDeleted DeleteState = "hard_deleted"
)

// StageType names one pipeline step.
type StageType string

const (
	StageDownload     StageType = "DOWNLOAD"
	StageTrim         StageType = "TRIM"
	StageTranscribe   StageType = "TRANSCRIBE"
	StageTopics       StageType = "EXTRACT_TOPICS"
	StageSubtitles    StageType = "GENERATE_SUBTITLES"
	StageUpload       StageType = "UPLOAD"
)

// StageOrder is the canonical execution order of the pipeline.
var StageOrder = []StageType{
	StageDownload,
	StageTrim,
	StageTranscribe,
	StageTopics,
	StageSubtitles,
	StageUpload,
}

// Optional reports whether a failed stage may be skipped without failing the
// recording. EXTRACT_TOPICS and GENERATE_SUBTITLES never block progression.
func (t StageType) Optional() bool {
	return t == StageTopics || t == StageSubtitles
}

// activityNames are the human-readable labels recorded on a recording's
// failure bookkeeping (failed_at_stage) and shown to users.
var activityNames = map[StageType]string{
	StageDownload:   "downloading",
	StageTrim:       "trimming",
	StageTranscribe: "transcribing",
	StageTopics:     "extracting_topics",
	StageSubtitles:  "generating_subtitles",
	StageUpload:     "uploading",
}

// Activity returns the label written to failed_at_stage when this stage
// fails a recording.
func (t StageType) Activity() string {
	if name, ok := activityNames[t]; ok {
		return name
	}
	return string(t)
}

// StageFromActivity resolves an activity label back to its stage type. Raw
// enum values are accepted too, for rows written before labels existed.
func StageFromActivity(name string) (StageType, bool) {
	for stage, label := range activityNames {
		if label == name || string(stage) == name {
			return stage, true
		}
	}
	return "", false
}

// StageState is the lifecycle of a single stage row.
type StageState string

const (
	StagePending    StageState = "PENDING"
	StageInProgress StageState = "IN_PROGRESS"
	StageCompleted  StageState = "COMPLETED"
	StageFailed     StageState = "FAILED"
	StageSkipped    StageState = "SKIPPED"
)

// IsTerminal returns true once a stage row will not change again.
func (s StageState) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	}
	return false
}

// TargetState is the lifecycle of one upload target row.
type TargetState string

const (
	TargetNotUploaded TargetState = "NOT_UPLOADED"
	TargetUploading   TargetState = "UPLOADING"
	TargetUploaded    TargetState = "UPLOADED"
	TargetFailed      TargetState = "FAILED"
)

// SourceType identifies the third-party origin of a recording.
type SourceType string

const (
	SourceZoom        SourceType = "ZOOM"
	SourceGoogleDrive SourceType = "GOOGLE_DRIVE"
	SourceYandexDisk  SourceType = "YANDEX_DISK"
	SourceLocal       SourceType = "LOCAL"
	SourceExternalURL SourceType = "EXTERNAL_URL"
	SourceYouTube     SourceType = "YOUTUBE"
)

// Platform identifies an upload destination.
type Platform string

const (
	PlatformYouTube    Platform = "YOUTUBE"
	PlatformVK         Platform = "VK"
	PlatformYandexDisk Platform = "YANDEX_DISK"
)
