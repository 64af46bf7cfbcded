package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakePipeline struct {
	piece     *domain.ContentPiece
	task      *domain.TaskRecord
	resumeErr error
	poked     int
}

func (f *fakePipeline) CreatePiece(_ context.Context, planID string) (*domain.ContentPiece, error) {
	if f.piece == nil {
		return nil, &domain.PlanNotFoundError{PlanID: planID}
	}
	return f.piece, nil
}

func (f *fakePipeline) AdvanceOne(_ context.Context, contentID string) (*domain.TaskRecord, error) {
	if f.task == nil {
		return nil, errors.New("no due task record for content piece " + contentID)
	}
	return f.task, nil
}

func (f *fakePipeline) Resume(_ context.Context, _, _ string) error { return f.resumeErr }
func (f *fakePipeline) Abandon(_ context.Context, _ string) error   { return f.resumeErr }
func (f *fakePipeline) TriggerPoll()                                { f.poked++ }

type fakeContentRepo struct {
	pieces map[string]*domain.ContentPiece
}

func (f *fakeContentRepo) Create(_ context.Context, _ *domain.ContentPiece) error { return nil }
func (f *fakeContentRepo) GetByID(_ context.Context, id string) (*domain.ContentPiece, error) {
	piece, ok := f.pieces[id]
	if !ok {
		return nil, &domain.ContentNotFoundError{ContentID: id}
	}
	return piece, nil
}
func (f *fakeContentRepo) List(_ context.Context, _ int) ([]*domain.ContentPiece, error) {
	return nil, nil
}
func (f *fakeContentRepo) UpdateStatus(_ context.Context, _ string, _ domain.ContentStatus) error {
	return nil
}
func (f *fakeContentRepo) ApplyStageFields(_ context.Context, _ string, _ postgres.StageFields) error {
	return nil
}
func (f *fakeContentRepo) MarkPublished(_ context.Context, _ string, _ int64, _ string) error {
	return nil
}

type fakeTaskRepo struct {
	byContent map[string][]*domain.TaskRecord
}

func (f *fakeTaskRepo) Create(_ context.Context, _ *domain.TaskRecord) error { return nil }
func (f *fakeTaskRepo) GetByID(_ context.Context, id string) (*domain.TaskRecord, error) {
	return nil, &domain.TaskNotFoundError{TaskID: id}
}
func (f *fakeTaskRepo) ListDue(_ context.Context, _ time.Time, _ int) ([]*domain.TaskRecord, error) {
	return nil, nil
}
func (f *fakeTaskRepo) Claim(_ context.Context, id string) error {
	return &domain.TaskNotClaimableError{TaskID: id}
}
func (f *fakeTaskRepo) MarkDone(_ context.Context, _ string, _ json.RawMessage) error { return nil }
func (f *fakeTaskRepo) MarkError(_ context.Context, _ string, _ int, _ string) error  { return nil }
func (f *fakeTaskRepo) MarkNeedsReview(_ context.Context, _ string, _ int, _ string) error {
	return nil
}
func (f *fakeTaskRepo) ListByContent(_ context.Context, contentID string) ([]*domain.TaskRecord, error) {
	return f.byContent[contentID], nil
}
func (f *fakeTaskRepo) HasUnfinished(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}
func (f *fakeTaskRepo) LatestOutput(_ context.Context, _, _ string) (json.RawMessage, error) {
	return nil, nil
}

type fakePlanRepo struct {
	plans map[string]*domain.StrategicPlan
}

func (f *fakePlanRepo) Create(_ context.Context, plan *domain.StrategicPlan) error {
	if plan.ID == "" {
		plan.ID = "plan-new"
	}
	f.plans[plan.ID] = plan
	return nil
}

func (f *fakePlanRepo) GetByID(_ context.Context, id string) (*domain.StrategicPlan, error) {
	plan, ok := f.plans[id]
	if !ok {
		return nil, &domain.PlanNotFoundError{PlanID: id}
	}
	return plan, nil
}

type fakeScheduleRepo struct {
	created []*domain.PublishSchedule
}

func (f *fakeScheduleRepo) Create(_ context.Context, s *domain.PublishSchedule) error {
	f.created = append(f.created, s)
	return nil
}
func (f *fakeScheduleRepo) GetByID(_ context.Context, _ string) (*domain.PublishSchedule, error) {
	return nil, errors.New("not found")
}
func (f *fakeScheduleRepo) List(_ context.Context) ([]*domain.PublishSchedule, error) {
	return f.created, nil
}
func (f *fakeScheduleRepo) ListDue(_ context.Context, _ time.Time) ([]*domain.PublishSchedule, error) {
	return nil, nil
}
func (f *fakeScheduleRepo) MarkRan(_ context.Context, _ string, _, _ time.Time) error { return nil }
func (f *fakeScheduleRepo) SetEnabled(_ context.Context, _ string, _ bool) error      { return nil }

// ── helpers ──────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, pipeline *fakePipeline, content *fakeContentRepo, tasks *fakeTaskRepo, plans *fakePlanRepo) (*httptest.Server, *fakeScheduleRepo) {
	t.Helper()
	if content == nil {
		content = &fakeContentRepo{pieces: map[string]*domain.ContentPiece{}}
	}
	if tasks == nil {
		tasks = &fakeTaskRepo{byContent: map[string][]*domain.TaskRecord{}}
	}
	if plans == nil {
		plans = &fakePlanRepo{plans: map[string]*domain.StrategicPlan{}}
	}
	schedules := &fakeScheduleRepo{}

	h := NewHandler(pipeline, content, tasks, plans, schedules, nil, slog.Default())
	srv := httptest.NewServer(Router(h, slog.Default()))
	t.Cleanup(srv.Close)
	return srv, schedules
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestAPI_CreatePiece_Accepted(t *testing.T) {
	pipeline := &fakePipeline{piece: &domain.ContentPiece{ID: "content-1", PlanID: "plan-1", Status: domain.ContentKeyword}}
	srv, _ := newTestServer(t, pipeline, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content", `{"plan_id":"plan-1"}`)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var piece domain.ContentPiece
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&piece))
	assert.Equal(t, "content-1", piece.ID)
	assert.Equal(t, 1, pipeline.poked, "poll triggered so the piece starts promptly")
}

func TestAPI_CreatePiece_MissingPlanID(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content", `{}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreatePiece_UnknownPlan(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content", `{"plan_id":"ghost"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_GetPiece_WithTaskHistory(t *testing.T) {
	content := &fakeContentRepo{pieces: map[string]*domain.ContentPiece{
		"content-1": {ID: "content-1", Status: domain.ContentDraft},
	}}
	tasks := &fakeTaskRepo{byContent: map[string][]*domain.TaskRecord{
		"content-1": {
			{ID: "task-1", ContentID: "content-1", Stage: "keyword", Status: domain.TaskDone},
			{ID: "task-2", ContentID: "content-1", Stage: "research", Status: domain.TaskError, RetryCount: 1},
			{ID: "task-3", ContentID: "content-1", Stage: "research", Status: domain.TaskDone, RetryCount: 1},
		},
	}}
	srv, _ := newTestServer(t, &fakePipeline{}, content, tasks, nil)

	resp, err := http.Get(srv.URL + "/api/v1/content/content-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PieceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "content-1", body.ID)
	require.Len(t, body.Tasks, 3, "full lineage including failed attempts")
}

func TestAPI_GetPiece_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/content/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Advance(t *testing.T) {
	pipeline := &fakePipeline{task: &domain.TaskRecord{ID: "task-1", Status: domain.TaskDone}}
	srv, _ := newTestServer(t, pipeline, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content/content-1/advance", ``)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task domain.TaskRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	assert.Equal(t, domain.TaskDone, task.Status)
}

func TestAPI_Advance_NothingDue(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content/content-1/advance", ``)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Resume(t *testing.T) {
	pipeline := &fakePipeline{}
	srv, _ := newTestServer(t, pipeline, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content/content-1/resume", `{"stage":"draft"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, pipeline.poked)
}

func TestAPI_Resume_UnknownStage(t *testing.T) {
	pipeline := &fakePipeline{resumeErr: &domain.UnknownStageError{Stage: "proofread"}}
	srv, _ := newTestServer(t, pipeline, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/content/content-1/resume", `{"stage":"proofread"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, pipeline.poked)
}

func TestAPI_CreatePlan_Roundtrip(t *testing.T) {
	plans := &fakePlanRepo{plans: map[string]*domain.StrategicPlan{}}
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, plans)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/plans",
		`{"domain":"example.com","audience":"golfers","tone":"upbeat","niche":"golf","goal":"traffic"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var plan domain.StrategicPlan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	require.NotEmpty(t, plan.ID)

	got, err := http.Get(srv.URL + "/api/v1/plans/" + plan.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestAPI_CreateSchedule(t *testing.T) {
	plans := &fakePlanRepo{plans: map[string]*domain.StrategicPlan{
		"plan-1": {ID: "plan-1", Domain: "example.com"},
	}}
	srv, schedules := newTestServer(t, &fakePipeline{}, nil, nil, plans)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/schedules",
		`{"plan_id":"plan-1","name":"daily","cron_expr":"0 9 * * *"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, schedules.created, 1)
	assert.True(t, schedules.created[0].Enabled)
}

func TestAPI_CreateSchedule_UnknownPlan(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/schedules",
		`{"plan_id":"ghost","cron_expr":"0 9 * * *"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, nil, nil, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_TriggerPoll(t *testing.T) {
	pipeline := &fakePipeline{}
	srv, _ := newTestServer(t, pipeline, nil, nil, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/poll", ``)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, pipeline.poked)
}
