// SPDX-License-Identifier: MIT

// Package exec defines the stage actions of the pipeline and the external
// service contracts they run against. Actions do the work of exactly one
// attempt; retry policy and state bookkeeping live in the executor.
package exec

import (
	"context"

	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
)

// Task is the per-recording context handed to every action.
type Task struct {
	Recording *model.Recording
	User      *model.User
	Meta      *model.SourceMetadata
	Files     paths.RecordingFiles
	Prefs     model.JSON // merged processing preferences
}

// Result is the successful outcome of one attempt.
type Result struct {
	Skipped    bool   // the action decided there is nothing to do
	SkipReason string // required when Skipped
	Meta       model.JSON
}

// Action runs one attempt of one stage. Failures are classified through
// model.Kind: retryable_io is retried by the executor, fatal_external and
// everything else is not.
type Action interface {
	Run(ctx context.Context, t *Task) (*Result, error)
}

// --- external service contracts ---

// SourceFetcher downloads the original file of a recording.
type SourceFetcher interface {
	// Fetch writes the source file to dest, returning the byte count.
	Fetch(ctx context.Context, meta *model.SourceMetadata, dest string) (int64, error)

	// Verify reports whether an existing local file at path is complete and
	// intact, so an interrupted attempt can be resumed without re-downloading.
	Verify(ctx context.Context, meta *model.SourceMetadata, path string) (bool, error)
}

// MediaProcessor trims video and extracts audio tracks.
type MediaProcessor interface {
	Trim(ctx context.Context, src, dst string, spec model.JSON) error
	ExtractAudio(ctx context.Context, src, dst string) error
}

// Transcriber produces the master transcript for an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts model.JSON) (model.JSON, error)
}

// TopicExtractor derives topic segments from a master transcript.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, transcript model.JSON, opts model.JSON) (model.JSON, error)
}

// SubtitleGenerator renders subtitle files from a master transcript.
type SubtitleGenerator interface {
	// Generate writes subtitle artifacts next to the recording's video and
	// returns their paths keyed by format.
	Generate(ctx context.Context, transcript model.JSON, videoPath string, opts model.JSON) (map[string]string, error)
}

// TargetUploader pushes the processed artifacts to one platform.
type TargetUploader interface {
	Platform() model.Platform

	// Upload returns the remote identity of the published artifact.
	Upload(ctx context.Context, t *Task, preset *model.OutputPreset) (remoteID, remoteURL string, meta model.JSON, err error)
}

// Section reads a named sub-map out of the merged preferences. Missing or
// malformed sections read as empty.
func Section(prefs model.JSON, name string) model.JSON {
	if prefs == nil {
		return model.JSON{}
	}
	if m, ok := prefs[name].(model.JSON); ok {
		return m
	}
	return model.JSON{}
}

// Enabled reports whether a preference section is switched on. Absent
// sections are off.
func Enabled(prefs model.JSON, name string) bool {
	b, _ := Section(prefs, name)["enabled"].(bool)
	return b
}

// AllowErrors reports whether a section tolerates failure (the stage is
// skipped instead of failing the recording).
func AllowErrors(prefs model.JSON, name string) bool {
	b, _ := Section(prefs, name)["allow_errors"].(bool)
	return b
}
