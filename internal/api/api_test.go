// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediaflow/internal/clock"
	"github.com/ManuGH/mediaflow/internal/discovery"
	"github.com/ManuGH/mediaflow/internal/model"
	"github.com/ManuGH/mediaflow/internal/paths"
	"github.com/ManuGH/mediaflow/internal/quota"
	"github.com/ManuGH/mediaflow/internal/scheduler"
	"github.com/ManuGH/mediaflow/internal/service"
	"github.com/ManuGH/mediaflow/internal/store"
	"github.com/ManuGH/mediaflow/internal/templates"
)

type noopPipeline struct{}

func (noopPipeline) Pass(context.Context) error { return nil }

type emptyAdapter struct{}

func (emptyAdapter) Type() model.SourceType { return model.SourceZoom }

func (emptyAdapter) List(context.Context, *model.InputSource, time.Time, time.Time, model.JSON) ([]model.CandidateRecording, error) {
	return nil, nil
}

type apiFixture struct {
	srv   *httptest.Server
	store *store.Store
	fake  *clock.Fake
	user  *model.User
	token string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()
	fake := clock.NewFake(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(dir, "test.db"), fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	u := &model.User{Name: "api"}
	require.NoError(t, st.CreateUser(ctx, u))

	reg := discovery.NewRegistry()
	reg.Register(emptyAdapter{})
	layout := paths.New(filepath.Join(dir, "storage"))
	ledger := quota.New(st, layout, fake, model.QuotaSet{})
	syncer := discovery.NewSyncer(st, ledger, templates.New(st), reg, fake)
	sched := scheduler.New(st, syncer, ledger, noopPipeline{}, fake, time.Minute)
	svc := service.New(st, ledger, sched, syncer, noopPipeline{}, fake, 48*time.Hour)

	tok, err := st.IssueRefreshToken(ctx, u.ID, "test-token", fake.Now().Add(24*time.Hour))
	require.NoError(t, err)

	srv := httptest.NewServer(New(svc, st).Router())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, store: st, fake: fake, user: u, token: tok.Token}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func validJob() jobRequest {
	return jobRequest{
		Name: "nightly",
		Schedule: model.Schedule{
			Kind:  model.ScheduleHours,
			Hours: &model.HoursSpec{EveryNHours: 6, Timezone: "UTC"},
		},
		SyncDays: 7,
		IsActive: true,
	}
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/jobs", nil)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer bogus")
	resp, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthzIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := f.srv.Client().Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.srv.Client().Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "corr-42")
	resp, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "corr-42", resp.Header.Get(HeaderRequestID))
}

func TestJobLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/jobs", validJob())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[jobResponse](t, resp)
	assert.NotZero(t, created.ID)
	require.NotNil(t, created.NextRunAt)
	assert.Equal(t, time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC), created.NextRunAt.UTC())

	resp = f.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]jobResponse](t, resp)
	require.Len(t, listed, 1)

	update := validJob()
	update.Name = "renamed"
	update.IsActive = false
	resp = f.do(t, http.MethodPut, "/api/v1/jobs/1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[jobResponse](t, resp)
	assert.Equal(t, "renamed", updated.Name)
	assert.Nil(t, updated.NextRunAt, "inactive jobs have no fire time")

	resp = f.do(t, http.MethodDelete, "/api/v1/jobs/1", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/jobs/1", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateJobValidationMapsTo400(t *testing.T) {
	f := newAPIFixture(t)

	bad := validJob()
	bad.SyncDays = 0
	resp := f.do(t, http.MethodPost, "/api/v1/jobs", bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "validation", body["error"])
}

func TestDryRunJobReturnsReport(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/jobs", validJob())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[jobResponse](t, resp)

	resp = f.do(t, http.MethodPost, "/api/v1/jobs/"+strconv.FormatInt(created.ID, 10)+"/dry-run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[syncReportResponse](t, resp)
	assert.Zero(t, rep.Candidates)
}

func TestRecordingEndpointsScopedToOwner(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	other := &model.User{Name: "other"}
	require.NoError(t, f.store.CreateUser(ctx, other))
	rec := &model.Recording{UserID: other.ID, DisplayName: "theirs", StartTime: f.fake.Now()}
	require.NoError(t, f.store.CreateRecording(ctx, rec, nil))

	resp := f.do(t, http.MethodGet, "/api/v1/recordings/"+rec.ID, nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordingLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	rec := &model.Recording{
		UserID: f.user.ID, DisplayName: "mine", StartTime: f.fake.Now(), IsMapped: true,
		Preferences: model.JSON{"transcription": model.JSON{"enabled": true}},
	}
	require.NoError(t, f.store.CreateRecording(ctx, rec, nil))

	resp := f.do(t, http.MethodGet, "/api/v1/recordings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]recordingResponse](t, resp)
	require.Len(t, listed, 1)
	assert.Equal(t, "INITIALIZED", listed[0].Status)

	resp = f.do(t, http.MethodPatch, "/api/v1/recordings/"+rec.ID+"/config",
		model.JSON{"transcription": model.JSON{"language": "de"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decode[recordingResponse](t, resp)
	tr := patched.Preferences["transcription"].(map[string]any)
	assert.Equal(t, "de", tr["language"])
	assert.Equal(t, true, tr["enabled"])

	resp = f.do(t, http.MethodPost, "/api/v1/recordings/"+rec.ID+"/pause", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/v1/recordings/"+rec.ID+"/resume", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/recordings/"+rec.ID+"/stages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stages := decode[[]stageResponse](t, resp)
	assert.Empty(t, stages, "nothing ran yet")

	resp = f.do(t, http.MethodDelete, "/api/v1/recordings/"+rec.ID+"?reason=test", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := f.store.GetRecording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteSoftDeleted, got.DeleteState)
	assert.Equal(t, "test", got.DeletionReason)
}

func TestRetryNonFailedMapsToConflict(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	rec := &model.Recording{UserID: f.user.ID, DisplayName: "fine", StartTime: f.fake.Now()}
	require.NoError(t, f.store.CreateRecording(ctx, rec, nil))

	resp := f.do(t, http.MethodPost, "/api/v1/recordings/"+rec.ID+"/retry", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestQuotaStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/quota", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[quotaResponse](t, resp)
	assert.Nil(t, status.Limits.MaxRecordingsPerMonth, "null means unlimited")
	assert.Zero(t, status.RecordingsUsed)
}

func TestRevokedTokenStopsWorking(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/auth/revoke", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/jobs", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
