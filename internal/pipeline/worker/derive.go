// SPDX-License-Identifier: MIT

// Package worker orchestrates recordings through the pipeline: it decides
// which stages a recording needs, runs them in canonical order through the
// executor and keeps the aggregate status derived from the stage rows.
package worker

import (
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
)

// RequiredStages derives the stage set of a recording from its merged
// preferences. DOWNLOAD and UPLOAD are always scheduled; UPLOAD skips itself
// when there are no targets so READY means the same thing everywhere.
func RequiredStages(prefs model.JSON) []model.StageType {
	out := []model.StageType{model.StageDownload}
	if exec.Enabled(prefs, "trim") {
		out = append(out, model.StageTrim)
	}
	transcribe := exec.Enabled(prefs, "transcription")
	if transcribe {
		out = append(out, model.StageTranscribe)
	}
	if transcribe && exec.Enabled(prefs, "topics") {
		out = append(out, model.StageTopics)
	}
	if transcribe && exec.Enabled(prefs, "subtitles") {
		out = append(out, model.StageSubtitles)
	}
	out = append(out, model.StageUpload)
	return out
}

// processingStages are the middle phase between DOWNLOADED and PROCESSED.
var processingStages = map[model.StageType]bool{
	model.StageTrim:       true,
	model.StageTranscribe: true,
	model.StageTopics:     true,
	model.StageSubtitles:  true,
}

func stageDone(st *model.ProcessingStage) bool {
	return st != nil && (st.State == model.StageCompleted || st.State == model.StageSkipped)
}

// DeriveStatus computes the aggregate status from the stage rows. It never
// yields the failure or deletion statuses; those are set by their own paths.
//
// A FAILED row that still has retries left counts as "not done", so the
// status points at the phase the pipeline will resume from.
func DeriveStatus(required []model.StageType, stages []*model.ProcessingStage) model.RecordingStatus {
	byType := make(map[model.StageType]*model.ProcessingStage, len(stages))
	for _, st := range stages {
		byType[st.Type] = st
	}

	dl := byType[model.StageDownload]
	if dl != nil && dl.State == model.StageInProgress {
		return model.StatusDownloading
	}
	if !stageDone(dl) {
		return model.StatusInitialized
	}

	var anyStarted bool
	procDone := true
	for _, t := range required {
		if !processingStages[t] {
			continue
		}
		st := byType[t]
		if st != nil && st.State == model.StageInProgress {
			return model.StatusProcessing
		}
		if stageDone(st) {
			anyStarted = true
		} else {
			procDone = false
			if st != nil && st.State != model.StagePending {
				anyStarted = true
			}
		}
	}
	if !procDone {
		if anyStarted {
			return model.StatusProcessing
		}
		return model.StatusDownloaded
	}

	up := byType[model.StageUpload]
	if up != nil && up.State == model.StageInProgress {
		return model.StatusUploading
	}
	if stageDone(up) {
		return model.StatusReady
	}
	return model.StatusProcessed
}
