// SPDX-License-Identifier: MIT

package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ManuGH/mediaflow/internal/fsutil"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
)

// DownloadAction fetches the original source file. An intact file left by an
// earlier interrupted attempt is reused instead of re-downloaded.
type DownloadAction struct {
	Fetcher SourceFetcher
}

func (a *DownloadAction) Run(ctx context.Context, t *Task) (*Result, error) {
	if t.Meta == nil {
		return nil, model.FatalExternal("recording has no source metadata", nil)
	}
	dest := t.Files.SourceVideo

	if fileExists(dest) {
		ok, err := a.Fetcher.Verify(ctx, t.Meta, dest)
		if err == nil && ok {
			return &Result{Meta: model.JSON{"resumed": true, "path": dest}}, nil
		}
		// Partial or stale file; start over.
		_ = os.Remove(dest)
	}

	if err := os.MkdirAll(t.Files.Dir, 0o755); err != nil {
		return nil, model.RetryableIO("creating recording dir", err)
	}
	n, err := a.Fetcher.Fetch(ctx, t.Meta, dest)
	if err != nil {
		return nil, err
	}
	return &Result{Meta: model.JSON{"bytes": n, "path": dest}}, nil
}

// TrimAction cuts the source video per the trim spec and extracts the audio
// track used by transcription.
type TrimAction struct {
	Media MediaProcessor
}

func (a *TrimAction) Run(ctx context.Context, t *Task) (*Result, error) {
	src := t.Files.SourceVideo
	if !fileExists(src) {
		return nil, model.FatalExternal("source video missing before trim", nil)
	}
	spec := Section(t.Prefs, "trim")
	if err := a.Media.Trim(ctx, src, t.Files.ProcessedVideo, spec); err != nil {
		return nil, err
	}
	if err := a.Media.ExtractAudio(ctx, t.Files.ProcessedVideo, t.Files.ProcessedAudio); err != nil {
		return nil, err
	}
	return &Result{Meta: model.JSON{
		"video": t.Files.ProcessedVideo,
		"audio": t.Files.ProcessedAudio,
	}}, nil
}

// TranscribeAction produces the master transcript. When the trim stage did not
// run, the audio track is extracted here from the best available video.
type TranscribeAction struct {
	Media       MediaProcessor
	Transcriber Transcriber
}

func (a *TranscribeAction) Run(ctx context.Context, t *Task) (*Result, error) {
	audio := t.Files.ProcessedAudio
	if !fileExists(audio) {
		video := t.Files.ProcessedVideo
		if !fileExists(video) {
			video = t.Files.SourceVideo
		}
		if !fileExists(video) {
			return nil, model.FatalExternal("no media to transcribe", nil)
		}
		if err := a.Media.ExtractAudio(ctx, video, audio); err != nil {
			return nil, err
		}
	}

	transcript, err := a.Transcriber.Transcribe(ctx, audio, Section(t.Prefs, "transcription"))
	if err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(t.Files.MasterJSON, transcript); err != nil {
		return nil, err
	}
	if err := writeTranscriptCache(t.Files, transcript); err != nil {
		return nil, err
	}
	return &Result{Meta: model.JSON{"transcript": t.Files.MasterJSON}}, nil
}

// writeTranscriptCache dumps the segments as "[HH:MM:SS.mmm - HH:MM:SS.mmm]
// text" lines and the words one per line, next to the master transcript.
// Downstream stages and search read these without parsing the full JSON.
func writeTranscriptCache(files paths.RecordingFiles, transcript model.JSON) error {
	segments, _ := transcript["segments"].([]any)
	if len(segments) == 0 {
		return nil
	}
	var segBuf, wordBuf bytes.Buffer
	for _, raw := range segments {
		seg, ok := raw.(model.JSON)
		if !ok {
			continue
		}
		if text, ok := seg["text"].(string); ok && text != "" {
			fmt.Fprintf(&segBuf, "[%s - %s] %s\n",
				clockStamp(seconds(seg["start"])), clockStamp(seconds(seg["end"])), text)
		}
		words, _ := seg["words"].([]any)
		for _, w := range words {
			wm, ok := w.(model.JSON)
			if !ok {
				continue
			}
			if text, ok := wm["word"].(string); ok && text != "" {
				wordBuf.WriteString(text)
				wordBuf.WriteByte('\n')
			}
		}
	}
	if segBuf.Len() > 0 {
		if err := fsutil.WriteAtomic(files.SegmentsTxt, segBuf.Bytes(), 0o644); err != nil {
			return model.RetryableIO("writing segments cache", err)
		}
	}
	if wordBuf.Len() > 0 {
		if err := fsutil.WriteAtomic(files.WordsTxt, wordBuf.Bytes(), 0o644); err != nil {
			return model.RetryableIO("writing words cache", err)
		}
	}
	return nil
}

// clockStamp renders a second offset as HH:MM:SS.mmm.
func clockStamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// seconds coerces the numeric shapes a JSON round trip can leave behind.
func seconds(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// TopicsAction derives topic segments from the master transcript. Without a
// transcript there is nothing to extract.
type TopicsAction struct {
	Extractor TopicExtractor
}

func (a *TopicsAction) Run(ctx context.Context, t *Task) (*Result, error) {
	transcript, ok, err := readJSON(t.Files.MasterJSON)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Skipped: true, SkipReason: "no transcript available"}, nil
	}
	topics, err := a.Extractor.ExtractTopics(ctx, transcript, Section(t.Prefs, "topics"))
	if err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(t.Files.TopicsJSON, topics); err != nil {
		return nil, err
	}
	return &Result{Meta: model.JSON{"topics": t.Files.TopicsJSON}}, nil
}

// SubtitlesAction renders subtitle files from the master transcript.
type SubtitlesAction struct {
	Generator SubtitleGenerator
}

func (a *SubtitlesAction) Run(ctx context.Context, t *Task) (*Result, error) {
	transcript, ok, err := readJSON(t.Files.MasterJSON)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Skipped: true, SkipReason: "no transcript available"}, nil
	}
	video := t.Files.ProcessedVideo
	if !fileExists(video) {
		video = t.Files.SourceVideo
	}
	artifacts, err := a.Generator.Generate(ctx, transcript, video, Section(t.Prefs, "subtitles"))
	if err != nil {
		return nil, err
	}
	meta := model.JSON{}
	for format, path := range artifacts {
		meta[format] = path
	}
	return &Result{Meta: meta}, nil
}

// TargetStore is the slice of the store the upload action needs.
type TargetStore interface {
	ListTargets(ctx context.Context, recordingID string) ([]*model.OutputTarget, error)
	BeginTargetUpload(ctx context.Context, recordingID string, platform model.Platform) (bool, error)
	FinishTargetUpload(ctx context.Context, recordingID string, platform model.Platform,
		state model.TargetState, remoteID, remoteURL string, meta model.JSON) error
	GetOutputPreset(ctx context.Context, userID string, id int64) (*model.OutputPreset, error)
}

// UploadAction pushes artifacts to every pending target. One run makes one
// attempt per non-uploaded target; targets that fail stay FAILED and are
// retried on the next stage attempt. Targets already UPLOADED are never
// re-pushed.
type UploadAction struct {
	Store     TargetStore
	Uploaders map[model.Platform]TargetUploader
}

func (a *UploadAction) Run(ctx context.Context, t *Task) (*Result, error) {
	targets, err := a.Store.ListTargets(ctx, t.Recording.ID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return &Result{Skipped: true, SkipReason: "no output targets"}, nil
	}

	meta := model.JSON{}
	var failed []string
	for _, target := range targets {
		if target.State == model.TargetUploaded {
			meta[string(target.TargetType)] = target.RemoteURL
			continue
		}
		uploader, ok := a.Uploaders[target.TargetType]
		if !ok {
			return nil, model.FatalExternal(fmt.Sprintf("no uploader for platform %s", target.TargetType), nil)
		}
		began, err := a.Store.BeginTargetUpload(ctx, t.Recording.ID, target.TargetType)
		if err != nil {
			return nil, err
		}
		if !began {
			continue // another runner holds it
		}

		var preset *model.OutputPreset
		if target.PresetID != nil {
			if preset, err = a.Store.GetOutputPreset(ctx, t.User.ID, *target.PresetID); err != nil {
				return nil, err
			}
		}
		remoteID, remoteURL, upMeta, upErr := uploader.Upload(ctx, t, preset)
		if upErr != nil {
			if err := a.Store.FinishTargetUpload(ctx, t.Recording.ID, target.TargetType,
				model.TargetFailed, "", "", model.JSON{"error": upErr.Error()}); err != nil {
				return nil, err
			}
			failed = append(failed, string(target.TargetType))
			continue
		}
		if err := a.Store.FinishTargetUpload(ctx, t.Recording.ID, target.TargetType,
			model.TargetUploaded, remoteID, remoteURL, upMeta); err != nil {
			return nil, err
		}
		meta[string(target.TargetType)] = remoteURL
	}

	if len(failed) > 0 {
		return nil, model.RetryableIO(fmt.Sprintf("targets failed: %v", failed), nil)
	}
	return &Result{Meta: meta}, nil
}

// --- small file helpers ---

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func writeJSONAtomic(path string, v model.JSON) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(path, b, 0o644); err != nil {
		return model.RetryableIO("writing artifact", err)
	}
	return nil
}

func readJSON(path string) (model.JSON, bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, model.RetryableIO("reading artifact", err)
	}
	var m model.JSON
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false, model.FatalExternal("corrupt artifact "+path, err)
	}
	return m, true, nil
}
