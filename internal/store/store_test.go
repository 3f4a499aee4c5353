// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/model"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, fake
}

func newTestUser(t *testing.T, s *Store) *model.User {
	t.Helper()
	u := &model.User{Name: "tester", CanTranscribe: true, CanUpload: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateUserAllocatesMonotonicSlugs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := &model.User{Name: "a"}
	b := &model.User{Name: "b"}
	require.NoError(t, s.CreateUser(ctx, a))
	require.NoError(t, s.CreateUser(ctx, b))

	require.NoError(t, clock.ParseID(a.ID))
	assert.Equal(t, a.Slug+1, b.Slug)
}

func TestRecordingDefaultsOnCreate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec := &model.Recording{UserID: u.ID, DisplayName: "Python Lecture 1", StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInitialized, got.Status)
	assert.Equal(t, model.DeleteActive, got.DeleteState)
	assert.Equal(t, 0, got.RetryCount)

	stages, err := s.ListStages(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, stages, "stage rows are not created on recording create")
}

func TestSourceKeyUniquePerUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec1 := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	meta1 := &model.SourceMetadata{SourceType: model.SourceZoom, SourceKey: "abc123"}
	require.NoError(t, s.CreateRecording(ctx, rec1, meta1))

	rec2 := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	meta2 := &model.SourceMetadata{SourceType: model.SourceZoom, SourceKey: "abc123"}
	err := s.CreateRecording(ctx, rec2, meta2)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))

	// A different user may reuse the key.
	other := newTestUser(t, s)
	rec3 := &model.Recording{UserID: other.ID, StartTime: time.Now()}
	meta3 := &model.SourceMetadata{SourceType: model.SourceZoom, SourceKey: "abc123"}
	require.NoError(t, s.CreateRecording(ctx, rec3, meta3))
}

func TestMarkFailureClearsPauseAndStampsTerminal(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec := &model.Recording{UserID: u.ID, DisplayName: "r", StartTime: fake.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))
	started := fake.Now()
	_, err := s.UpdateRecording(ctx, rec.ID, func(r *model.Recording) error {
		r.PipelineStartedAt = &started
		r.OnPause = true
		r.PauseRequestedAt = &started
		return nil
	})
	require.NoError(t, err)

	// Retryable exhaustion rolls back without closing the timing.
	fake.Advance(time.Minute)
	require.NoError(t, s.MarkFailure(ctx, rec.ID, "throttled", model.StageDownload.Activity(), model.StatusInitialized))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Failed)
	assert.Equal(t, "downloading", got.FailedAtStage)
	assert.Equal(t, model.StatusInitialized, got.Status)
	assert.False(t, got.OnPause)
	assert.Nil(t, got.PauseRequestedAt)
	assert.Nil(t, got.PipelineCompletedAt)

	// A fatal failure is terminal and closes the timing.
	fake.Advance(time.Minute)
	require.NoError(t, s.MarkFailure(ctx, rec.ID, "gone for good", model.StageDownload.Activity(), model.StatusFailed))

	got, err = s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.PipelineCompletedAt)
	assert.Equal(t, 120.0, got.PipelineDurationSecs)
}

func TestSoftDeleteSchedulesHardDelete(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))
	require.NoError(t, s.SoftDeleteRecording(ctx, rec.ID, "user request", 48*time.Hour))

	got, err := s.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteSoftDeleted, got.DeleteState)
	require.NotNil(t, got.SoftDeletedAt)
	require.NotNil(t, got.HardDeleteAt)
	assert.Equal(t, fake.Now().Add(48*time.Hour), *got.HardDeleteAt)

	due, err := s.ListSoftDeletedDue(ctx, fake.Now().Add(49*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestHardDeletedNeverReturned(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))
	require.NoError(t, s.MarkHardDeleted(ctx, rec.ID))

	_, err := s.GetRecording(ctx, rec.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	// Admin opt-in still sees the row until purged.
	got, err := s.GetRecordingAdmin(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteHardDeleted, got.DeleteState)

	n, err := s.PurgeHardDeletedRows(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestBeginStageSerialization(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))

	st, err := s.BeginStage(ctx, u.ID, rec.ID, model.StageDownload, 10, model.Limit{Unlimited: true})
	require.NoError(t, err)
	assert.Equal(t, model.StageInProgress, st.State)
	assert.Equal(t, 1, st.RetryCount)

	// A second runner must be rejected while in progress.
	_, err = s.BeginStage(ctx, u.ID, rec.ID, model.StageDownload, 10, model.Limit{Unlimited: true})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))

	require.NoError(t, s.FinishStage(ctx, u.ID, rec.ID, model.StageDownload, model.StageCompleted, "", "", nil))

	// Re-running a completed stage is an idempotent no-op.
	done, err := s.BeginStage(ctx, u.ID, rec.ID, model.StageDownload, 10, model.Limit{Unlimited: true})
	assert.ErrorIs(t, err, ErrStageDone)
	assert.Equal(t, model.StageCompleted, done.State)
}

func TestBeginStageRetryExhaustion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))

	for i := 0; i < 3; i++ {
		_, err := s.BeginStage(ctx, u.ID, rec.ID, model.StageTrim, 3, model.Limit{Unlimited: true})
		require.NoError(t, err)
		require.NoError(t, s.FinishStage(ctx, u.ID, rec.ID, model.StageTrim, model.StageFailed, "boom", "", nil))
	}

	_, err := s.BeginStage(ctx, u.ID, rec.ID, model.StageTrim, 3, model.Limit{Unlimited: true})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindFatalExternal))
}

func TestBeginStageQuotaAdmissionAndGaugeBalance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	one := 1

	recA := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	recB := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, recA, nil))
	require.NoError(t, s.CreateRecording(ctx, recB, nil))

	_, err := s.BeginStage(ctx, u.ID, recA.ID, model.StageDownload, 10, model.LimitOf(&one))
	require.NoError(t, err)

	_, err = s.BeginStage(ctx, u.ID, recB.ID, model.StageDownload, 10, model.LimitOf(&one))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindQuotaDenied))

	require.NoError(t, s.FinishStage(ctx, u.ID, recA.ID, model.StageDownload, model.StageFailed, "x", "", nil))
	n, err := s.ConcurrentTasks(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "gauge must balance after finish")
}

func TestTrackRecordingCreatedMonotonicPerPeriod(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	require.NoError(t, s.TrackRecordingCreated(ctx, u.ID, 202603))
	require.NoError(t, s.TrackRecordingCreated(ctx, u.ID, 202603))

	usage, err := s.GetUsage(ctx, u.ID, 202603)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.RecordingsCount)

	other, err := s.GetUsage(ctx, u.ID, 202602)
	require.NoError(t, err)
	assert.Equal(t, 0, other.RecordingsCount, "other periods unaffected")
}

func TestAdjustConcurrentTasksClampsAtZero(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	n, err := s.AdjustConcurrentTasks(ctx, u.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.AdjustConcurrentTasks(ctx, u.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTemplateValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	err := s.CreateTemplate(ctx, &model.RecordingTemplate{UserID: u.ID, Name: "empty", IsDraft: false})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	err = s.CreateTemplate(ctx, &model.RecordingTemplate{
		UserID: u.ID, Name: "badre",
		Rules: model.MatchingRules{Patterns: []string{"("}},
	})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))

	// Drafts may be empty.
	require.NoError(t, s.CreateTemplate(ctx, &model.RecordingTemplate{UserID: u.ID, Name: "draft", IsDraft: true}))
}

func TestTemplateRankingOrder(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	mk := func(name string, draft, active bool, used int) {
		tpl := &model.RecordingTemplate{
			UserID: u.ID, Name: name, IsDraft: draft, IsActive: active,
			Rules: model.MatchingRules{Keywords: []string{"x"}},
		}
		require.NoError(t, s.CreateTemplate(ctx, tpl))
		for i := 0; i < used; i++ {
			require.NoError(t, s.TouchTemplateUsage(ctx, tpl.ID, fake.Now()))
		}
		fake.Advance(time.Second)
	}
	mk("draft", true, true, 9)
	mk("inactive", false, false, 9)
	mk("low-use", false, true, 1)
	mk("high-use", false, true, 5)

	ranked, err := s.ListTemplatesRanked(ctx, u.ID)
	require.NoError(t, err)
	names := make([]string, len(ranked))
	for i, tpl := range ranked {
		names[i] = tpl.Name
	}
	assert.Equal(t, []string{"high-use", "low-use", "inactive", "draft"}, names)
}

func TestJobCRUDAndDueQuery(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	next := fake.Now().Add(time.Hour)
	j := &model.AutomationJob{
		UserID: u.ID, Name: "nightly",
		Schedule:  model.Schedule{Kind: model.ScheduleCron, Cron: &model.CronSpec{Expression: "0 3 * * *", Timezone: "UTC"}},
		Sync:      model.SyncConfig{SyncDays: 7},
		IsActive:  true,
		NextRunAt: &next,
	}
	require.NoError(t, s.CreateJob(ctx, j))

	dup := *j
	dup.ID = 0
	err := s.CreateJob(ctx, &dup)
	assert.True(t, model.IsKind(err, model.KindConflict))

	due, err := s.ListDueJobs(ctx, fake.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.ListDueJobs(ctx, fake.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "nightly", due[0].Name)
	assert.Equal(t, model.SyncConfig{SyncDays: 7}, due[0].Sync)
}

func TestTargetLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))

	require.NoError(t, s.EnsureTarget(ctx, rec.ID, model.PlatformYouTube, nil))
	require.NoError(t, s.EnsureTarget(ctx, rec.ID, model.PlatformYouTube, nil)) // idempotent

	targets, err := s.ListTargets(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, model.TargetNotUploaded, targets[0].State)

	ok, err := s.BeginTargetUpload(ctx, rec.ID, model.PlatformYouTube)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.FinishTargetUpload(ctx, rec.ID, model.PlatformYouTube,
		model.TargetUploaded, "yt-1", "https://youtu.be/yt-1", nil))

	got, err := s.GetTarget(ctx, rec.ID, model.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, model.TargetUploaded, got.State)
	assert.Equal(t, 1, got.Attempts)
}

func TestStageTimingAppendAndFinalize(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	rec := &model.Recording{UserID: u.ID, StartTime: time.Now()}
	require.NoError(t, s.CreateRecording(ctx, rec, nil))

	timing := &model.StageTiming{
		RecordingID: rec.ID, Stage: model.StageDownload, Attempt: 1,
		StartedAt: fake.Now(), Status: model.StageInProgress,
	}
	require.NoError(t, s.AppendStageTiming(ctx, timing))
	require.NotZero(t, timing.ID)

	fake.Advance(3 * time.Second)
	require.NoError(t, s.FinalizeStageTiming(ctx, timing.ID, fake.Now(), model.StageCompleted, ""))

	rows, err := s.ListStageTimings(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].DurationSecs)
	assert.InDelta(t, 3.0, *rows[0].DurationSecs, 0.001)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	tok, err := s.IssueRefreshToken(ctx, u.ID, "opaque-token", fake.Now().Add(time.Hour))
	require.NoError(t, err)

	got, err := s.ValidateRefreshToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	require.NoError(t, s.RevokeRefreshToken(ctx, tok.Token))
	_, err = s.ValidateRefreshToken(ctx, tok.Token)
	assert.True(t, model.IsKind(err, model.KindValidation))
}
