// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/pipeline/exec"
	"github.com/ManuGH/mediaflow/internal/pipeline/executor"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/store"
)

type stubAction struct {
	err    error
	skip   bool
	reason string
	calls  int
	onRun  func()
}

func (a *stubAction) Run(_ context.Context, _ *exec.Task) (*exec.Result, error) {
	a.calls++
	if a.onRun != nil {
		a.onRun()
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.skip {
		return &exec.Result{Skipped: true, SkipReason: a.reason}, nil
	}
	return &exec.Result{}, nil
}

type workerFixture struct {
	orch    *Orchestrator
	store   *store.Store
	fake    *clock.Fake
	user    *model.User
	actions map[model.StageType]*stubAction
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	dir := t.TempDir()
	fake := clock.NewFake(time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(dir, "test.db"), fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	u := &model.User{Name: "pipeline"}
	require.NoError(t, st.CreateUser(ctx, u))

	stubs := make(map[model.StageType]*stubAction)
	actions := make(map[model.StageType]exec.Action)
	for _, stage := range model.StageOrder {
		s := &stubAction{}
		stubs[stage] = s
		actions[stage] = s
	}
	// Without targets the upload stage skips itself, like the real action.
	stubs[model.StageUpload].skip = true
	stubs[model.StageUpload].reason = "no output targets"

	layout := paths.New(filepath.Join(dir, "storage"))
	ledger := quota.New(st, layout, fake, model.QuotaSet{})
	ex := executor.New(st, ledger, fake, actions)

	return &workerFixture{
		orch:    New(st, ex, layout, fake, 2, time.Minute),
		store:   st,
		fake:    fake,
		user:    u,
		actions: stubs,
	}
}

func (f *workerFixture) newRecording(t *testing.T, prefs model.JSON) *model.Recording {
	t.Helper()
	rec := &model.Recording{
		UserID: f.user.ID, DisplayName: "rec", StartTime: f.fake.Now(),
		IsMapped: true, Preferences: prefs,
	}
	require.NoError(t, f.store.CreateRecording(context.Background(), rec, nil))
	return rec
}

func allPrefs() model.JSON {
	return model.JSON{
		"trim":          model.JSON{"enabled": true},
		"transcription": model.JSON{"enabled": true},
		"topics":        model.JSON{"enabled": true},
		"subtitles":     model.JSON{"enabled": true},
	}
}

func TestHappyPathReachesReady(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := f.newRecording(t, allPrefs())

	require.NoError(t, f.orch.Pass(ctx))

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
	require.NotNil(t, got.PipelineStartedAt)
	require.NotNil(t, got.PipelineCompletedAt)
	assert.NotEmpty(t, got.LocalVideoPath)
	assert.NotEmpty(t, got.TranscriptionDir)

	for _, stage := range []model.StageType{
		model.StageDownload, model.StageTrim, model.StageTranscribe,
		model.StageTopics, model.StageSubtitles,
	} {
		assert.Equal(t, 1, f.actions[stage].calls, string(stage))
	}

	stages, err := f.store.ListStages(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stages, 6)

	// A second pass does no further work.
	require.NoError(t, f.orch.Pass(ctx))
	assert.Equal(t, 1, f.actions[model.StageDownload].calls)
}

func TestDisabledStagesNeverRun(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := f.newRecording(t, model.JSON{"transcription": model.JSON{"enabled": true}})

	require.NoError(t, f.orch.Pass(ctx))

	assert.Zero(t, f.actions[model.StageTrim].calls)
	assert.Zero(t, f.actions[model.StageTopics].calls)
	assert.Equal(t, 1, f.actions[model.StageTranscribe].calls)

	stages, err := f.store.ListStages(ctx, rec.ID)
	require.NoError(t, err)
	for _, st := range stages {
		assert.NotEqual(t, model.StageTrim, st.Type, "no row for a disabled stage")
	}

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
}

func TestUnmappedAndBlankRecordingsIgnored(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	unmapped := &model.Recording{UserID: f.user.ID, StartTime: f.fake.Now()}
	require.NoError(t, f.store.CreateRecording(ctx, unmapped, nil))

	require.NoError(t, f.orch.Pass(ctx))
	assert.Zero(t, f.actions[model.StageDownload].calls)

	got, err := f.store.GetRecording(ctx, unmapped.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInitialized, got.Status)
}

func TestPauseParksBetweenStages(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := f.newRecording(t, allPrefs())

	// Pause lands while the download runs; the trim stage must not start.
	f.actions[model.StageDownload].onRun = func() {
		_, err := f.store.UpdateRecording(ctx, rec.ID, func(r *model.Recording) error {
			now := f.fake.Now()
			r.OnPause = true
			r.PauseRequestedAt = &now
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.orch.Pass(ctx))
	assert.Equal(t, 1, f.actions[model.StageDownload].calls)
	assert.Zero(t, f.actions[model.StageTrim].calls)

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDownloaded, got.Status)

	// Resume continues exactly where it stopped.
	_, err = f.store.UpdateRecording(ctx, rec.ID, func(r *model.Recording) error {
		r.OnPause = false
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, f.orch.Pass(ctx))

	assert.Equal(t, 1, f.actions[model.StageDownload].calls, "completed stages stay done")
	assert.Equal(t, 1, f.actions[model.StageTrim].calls)

	got, err = f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
}

func TestFatalFailureStopsPipeline(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := f.newRecording(t, allPrefs())
	f.actions[model.StageTrim].err = model.FatalExternal("codec unsupported", nil)

	require.NoError(t, f.orch.Pass(ctx))

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Failed)
	assert.Equal(t, "trimming", got.FailedAtStage)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.NotNil(t, got.PipelineCompletedAt)
	assert.Zero(t, f.actions[model.StageTranscribe].calls)

	// Failed recordings drop out of orchestration.
	require.NoError(t, f.orch.Pass(ctx))
	assert.Equal(t, 1, f.actions[model.StageTrim].calls)
}

func TestOptionalFailureDoesNotBlock(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := f.newRecording(t, allPrefs())
	f.actions[model.StageTopics].err = model.FatalExternal("llm rejected", nil)

	require.NoError(t, f.orch.Pass(ctx))

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
	assert.False(t, got.Failed)

	st, err := f.store.GetStage(ctx, rec.ID, model.StageTopics)
	require.NoError(t, err)
	assert.Equal(t, model.StageSkipped, st.State)
	assert.Equal(t, 1, f.actions[model.StageSubtitles].calls, "later stages still run")
}

func TestEnsureTargetsFromOutputConfig(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	rec := &model.Recording{
		UserID: f.user.ID, StartTime: f.fake.Now(), IsMapped: true,
		Preferences: model.JSON{},
		Output: model.JSON{"targets": []any{
			"YOUTUBE",
			model.JSON{"platform": "VK", "preset_id": float64(3)},
		}},
	}
	require.NoError(t, f.store.CreateRecording(ctx, rec, nil))

	require.NoError(t, f.orch.Pass(ctx))

	targets, err := f.store.ListTargets(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, model.PlatformYouTube, targets[0].TargetType)
	assert.Equal(t, model.PlatformVK, targets[1].TargetType)
	require.NotNil(t, targets[1].PresetID)
	assert.EqualValues(t, 3, *targets[1].PresetID)
}

func TestDeriveStatusTable(t *testing.T) {
	required := []model.StageType{
		model.StageDownload, model.StageTrim, model.StageTranscribe, model.StageUpload,
	}
	row := func(t model.StageType, s model.StageState) *model.ProcessingStage {
		return &model.ProcessingStage{Type: t, State: s}
	}

	cases := []struct {
		name   string
		stages []*model.ProcessingStage
		want   model.RecordingStatus
	}{
		{"no rows", nil, model.StatusInitialized},
		{"download running", []*model.ProcessingStage{row(model.StageDownload, model.StageInProgress)}, model.StatusDownloading},
		{"download failed midway", []*model.ProcessingStage{row(model.StageDownload, model.StageFailed)}, model.StatusInitialized},
		{"download done", []*model.ProcessingStage{row(model.StageDownload, model.StageCompleted)}, model.StatusDownloaded},
		{"trim running", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageInProgress),
		}, model.StatusProcessing},
		{"trim done transcribe pending", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageCompleted),
		}, model.StatusProcessing},
		{"processing done", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageCompleted),
			row(model.StageTranscribe, model.StageSkipped),
		}, model.StatusProcessed},
		{"uploading", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageCompleted),
			row(model.StageTranscribe, model.StageCompleted),
			row(model.StageUpload, model.StageInProgress),
		}, model.StatusUploading},
		{"upload failed retries pending", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageCompleted),
			row(model.StageTranscribe, model.StageCompleted),
			row(model.StageUpload, model.StageFailed),
		}, model.StatusProcessed},
		{"all done", []*model.ProcessingStage{
			row(model.StageDownload, model.StageCompleted),
			row(model.StageTrim, model.StageCompleted),
			row(model.StageTranscribe, model.StageCompleted),
			row(model.StageUpload, model.StageSkipped),
		}, model.StatusReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(required, tc.stages))
		})
	}
}

func TestRequiredStages(t *testing.T) {
	assert.Equal(t,
		[]model.StageType{model.StageDownload, model.StageUpload},
		RequiredStages(model.JSON{}))

	assert.Equal(t,
		[]model.StageType{
			model.StageDownload, model.StageTrim, model.StageTranscribe,
			model.StageTopics, model.StageSubtitles, model.StageUpload,
		},
		RequiredStages(allPrefs()))

	// Topics depend on transcription.
	assert.Equal(t,
		[]model.StageType{model.StageDownload, model.StageUpload},
		RequiredStages(model.JSON{"topics": model.JSON{"enabled": true}}))
}
