// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/store"
	"github.com/ManuGH/mediaflow/internal/templates"
)

type tickFollower struct{ passes int }

func (f *tickFollower) Pass(context.Context) error {
	f.passes++
	return nil
}

type listAdapter struct {
	candidates []model.CandidateRecording
}

func (a *listAdapter) Type() model.SourceType { return model.SourceZoom }

func (a *listAdapter) List(context.Context, *model.InputSource, time.Time, time.Time, model.JSON) ([]model.CandidateRecording, error) {
	return a.candidates, nil
}

type schedFixture struct {
	sched    *Scheduler
	store    *store.Store
	fake     *clock.Fake
	user     *model.User
	adapter  *listAdapter
	follower *tickFollower
}

func newSchedFixture(t *testing.T, defaults model.QuotaSet) *schedFixture {
	t.Helper()
	dir := t.TempDir()
	fake := clock.NewFake(time.Date(2026, 5, 4, 2, 30, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(dir, "test.db"), fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	u := &model.User{Name: "sched"}
	require.NoError(t, st.CreateUser(ctx, u))
	src := &model.InputSource{UserID: u.ID, Name: "zoom", SourceType: model.SourceZoom}
	require.NoError(t, st.CreateInputSource(ctx, src))

	adapter := &listAdapter{}
	reg := discovery.NewRegistry()
	reg.Register(adapter)

	layout := paths.New(filepath.Join(dir, "storage"))
	ledger := quota.New(st, layout, fake, defaults)
	syncer := discovery.NewSyncer(st, ledger, templates.New(st), reg, fake)

	follower := &tickFollower{}
	return &schedFixture{
		sched:    New(st, syncer, ledger, follower, fake, time.Minute),
		store:    st,
		fake:     fake,
		user:     u,
		adapter:  adapter,
		follower: follower,
	}
}

func dailyAt3(tz string) model.Schedule {
	return model.Schedule{
		Kind:      model.ScheduleTimeOfDay,
		TimeOfDay: &model.TimeOfDaySpec{Hour: 3, Minute: 0, Timezone: tz},
	}
}

func (f *schedFixture) createJob(t *testing.T, sched model.Schedule, nextRun time.Time) *model.AutomationJob {
	t.Helper()
	j := &model.AutomationJob{
		UserID: f.user.ID, Name: "nightly",
		Schedule: sched, Sync: model.SyncConfig{SyncDays: 7},
		IsActive: true, NextRunAt: &nextRun,
	}
	require.NoError(t, f.store.CreateJob(context.Background(), j))
	return j
}

func TestTickRunsDueJobAndReschedules(t *testing.T) {
	f := newSchedFixture(t, model.QuotaSet{})
	ctx := context.Background()
	f.adapter.candidates = []model.CandidateRecording{{
		SourceKey: "z-1", DisplayName: "Found", StartTime: f.fake.Now(),
		Finalized: true,
	}}
	job := f.createJob(t, dailyAt3("UTC"), f.fake.Now().Add(-time.Minute))

	require.NoError(t, f.sched.Tick(ctx))

	got, err := f.store.GetJob(ctx, f.user.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC), *got.NextRunAt)

	rec, err := f.store.FindBySourceKey(ctx, f.user.ID, model.SourceZoom, "z-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInitialized, rec.Status)

	assert.Equal(t, 1, f.follower.passes, "pipeline poked after enqueue")

	// Not due again until 03:00.
	require.NoError(t, f.sched.Tick(ctx))
	got, err = f.store.GetJob(ctx, f.user.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunCount)
}

func TestNextRunHonorsTimezone(t *testing.T) {
	f := newSchedFixture(t, model.QuotaSet{})
	job := &model.AutomationJob{Schedule: dailyAt3("Europe/Berlin")}

	// 2026-05-04 02:30 UTC is 04:30 CEST; next 03:00 Berlin is tomorrow 01:00 UTC.
	next, err := f.sched.NextRun(job, f.fake.Now())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 5, 5, 1, 0, 0, 0, time.UTC), *next)
}

func TestInactiveJobsNeverFire(t *testing.T) {
	f := newSchedFixture(t, model.QuotaSet{})
	ctx := context.Background()
	job := f.createJob(t, dailyAt3("UTC"), f.fake.Now().Add(-time.Minute))
	job.IsActive = false
	require.NoError(t, f.store.UpdateJob(ctx, job))

	require.NoError(t, f.sched.Tick(ctx))
	got, err := f.store.GetJob(ctx, f.user.ID, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RunCount)
	assert.Zero(t, f.follower.passes)
}

func TestTickSkipsJobBelowMinInterval(t *testing.T) {
	six := 6
	f := newSchedFixture(t, model.QuotaSet{MinAutomationIntervalHours: &six})
	ctx := context.Background()
	f.adapter.candidates = []model.CandidateRecording{{
		SourceKey: "z-1", DisplayName: "Too eager", StartTime: f.fake.Now(), Finalized: true,
	}}

	// The job predates the 6h floor; it must stop firing without an update.
	twoHourly := model.Schedule{Kind: model.ScheduleHours, Hours: &model.HoursSpec{EveryNHours: 2, Timezone: "UTC"}}
	job := f.createJob(t, twoHourly, f.fake.Now().Add(-time.Minute))

	require.NoError(t, f.sched.Tick(ctx))

	got, err := f.store.GetJob(ctx, f.user.ID, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RunCount, "a skipped job is not a run")
	assert.Nil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(f.fake.Now()), "pushed off the due queue")

	_, err = f.store.FindBySourceKey(ctx, f.user.ID, model.SourceZoom, "z-1")
	assert.True(t, model.IsKind(err, model.KindNotFound), "discovery never ran")
	assert.Zero(t, f.follower.passes)
}

func TestRunJobDryRunLeavesBookkeeping(t *testing.T) {
	f := newSchedFixture(t, model.QuotaSet{})
	ctx := context.Background()
	f.adapter.candidates = []model.CandidateRecording{{
		SourceKey: "z-1", DisplayName: "Dry", StartTime: f.fake.Now(), Finalized: true,
	}}
	job := f.createJob(t, dailyAt3("UTC"), f.fake.Now().Add(time.Hour))

	require.NoError(t, f.sched.RunJob(ctx, job, true))

	got, err := f.store.GetJob(ctx, f.user.ID, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RunCount)
	assert.Nil(t, got.LastRunAt)

	_, err = f.store.FindBySourceKey(ctx, f.user.ID, model.SourceZoom, "z-1")
	assert.True(t, model.IsKind(err, model.KindNotFound))
}
