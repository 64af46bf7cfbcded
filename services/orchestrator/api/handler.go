// Package api is the orchestrator's HTTP control surface: creating plans,
// pieces and schedules, inspecting pipeline progress, and resolving
// escalations by hand. It drives the same scheduler the poll loop uses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
)

// Pipeline is the slice of the scheduler the control API drives.
type Pipeline interface {
	CreatePiece(ctx context.Context, planID string) (*domain.ContentPiece, error)
	AdvanceOne(ctx context.Context, contentID string) (*domain.TaskRecord, error)
	Resume(ctx context.Context, contentID, stage string) error
	Abandon(ctx context.Context, contentID string) error
	TriggerPoll()
}

// Handler serves the orchestrator control API.
type Handler struct {
	pipeline  Pipeline
	content   postgres.ContentRepository
	tasks     postgres.TaskRepository
	plans     postgres.PlanRepository
	schedules postgres.ScheduleRepository
	mirror    redisstore.StateStore // nil = read Postgres only
	logger    *slog.Logger
}

// NewHandler builds the control API handler.
func NewHandler(
	pipeline Pipeline,
	content postgres.ContentRepository,
	tasks postgres.TaskRepository,
	plans postgres.PlanRepository,
	schedules postgres.ScheduleRepository,
	mirror redisstore.StateStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pipeline:  pipeline,
		content:   content,
		tasks:     tasks,
		plans:     plans,
		schedules: schedules,
		mirror:    mirror,
		logger:    logger,
	}
}

// CreatePlanRequest is the JSON body for POST /api/v1/plans.
type CreatePlanRequest struct {
	Domain   string `json:"domain"`
	Audience string `json:"audience"`
	Tone     string `json:"tone"`
	Niche    string `json:"niche"`
	Goal     string `json:"goal"`
}

// CreatePlan handles POST /api/v1/plans.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusBadRequest, "field 'domain' is required")
		return
	}

	plan := &domain.StrategicPlan{
		Domain:   req.Domain,
		Audience: req.Audience,
		Tone:     req.Tone,
		Niche:    req.Niche,
		Goal:     req.Goal,
	}
	if err := h.plans.Create(r.Context(), plan); err != nil {
		h.logger.Error("create plan", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create plan")
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// GetPlan handles GET /api/v1/plans/{id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var notFound *domain.PlanNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("get plan", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve plan")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CreatePieceRequest is the JSON body for POST /api/v1/content.
type CreatePieceRequest struct {
	PlanID string `json:"plan_id"`
}

// CreatePiece handles POST /api/v1/content: creates a piece and queues the
// first pipeline stage. 202 because the pipeline runs asynchronously.
func (h *Handler) CreatePiece(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("control-api").Start(r.Context(), "api.create_piece")
	defer span.End()

	var req CreatePieceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		writeError(w, http.StatusBadRequest, "field 'plan_id' is required")
		return
	}
	span.SetAttributes(attribute.String("plan.id", req.PlanID))

	piece, err := h.pipeline.CreatePiece(ctx, req.PlanID)
	if err != nil {
		var notFound *domain.PlanNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("create piece", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create content piece")
		return
	}

	h.pipeline.TriggerPoll()
	writeJSON(w, http.StatusAccepted, piece)
}

// PieceResponse is the GET /api/v1/content/{id} response body: the piece
// plus its full task lineage.
type PieceResponse struct {
	*domain.ContentPiece
	Tasks []*domain.TaskRecord `json:"tasks"`
}

// GetPiece handles GET /api/v1/content/{id}.
func (h *Handler) GetPiece(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contentID := chi.URLParam(r, "id")

	piece, err := h.content.GetByID(ctx, contentID)
	if err != nil {
		var notFound *domain.ContentNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "content piece not found")
			return
		}
		h.logger.Error("get piece", slog.String("content_id", contentID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve content piece")
		return
	}

	// The mirror may be ahead of the row this handler read.
	if h.mirror != nil {
		if status, err := h.mirror.GetContentStatus(ctx, contentID); err == nil {
			piece.Status = status
		}
	}

	tasks, err := h.tasks.ListByContent(ctx, contentID)
	if err != nil {
		h.logger.Error("list tasks", slog.String("content_id", contentID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve task records")
		return
	}

	writeJSON(w, http.StatusOK, PieceResponse{ContentPiece: piece, Tasks: tasks})
}

// Advance handles POST /api/v1/content/{id}/advance: synchronously runs the
// next due stage for the piece.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	task, err := h.pipeline.AdvanceOne(r.Context(), contentID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ResumeRequest is the JSON body for POST /api/v1/content/{id}/resume.
type ResumeRequest struct {
	Stage string `json:"stage"`
}

// Resume handles POST /api/v1/content/{id}/resume: re-queues an escalated
// stage with a fresh retry budget.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Stage) == "" {
		writeError(w, http.StatusBadRequest, "field 'stage' is required")
		return
	}

	contentID := chi.URLParam(r, "id")
	if err := h.pipeline.Resume(r.Context(), contentID, req.Stage); err != nil {
		var unknown *domain.UnknownStageError
		var notFound *domain.ContentNotFoundError
		switch {
		case errors.As(err, &unknown):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, "content piece not found")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	h.pipeline.TriggerPoll()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

// Abandon handles POST /api/v1/content/{id}/abandon: stops the pipeline for
// a piece.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")
	if err := h.pipeline.Abandon(r.Context(), contentID); err != nil {
		var notFound *domain.ContentNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "content piece not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}

// TriggerPoll handles POST /api/v1/poll: requests an immediate scheduler cycle.
func (h *Handler) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	h.pipeline.TriggerPoll()
	w.WriteHeader(http.StatusAccepted)
}

// CreateScheduleRequest is the JSON body for POST /api/v1/schedules.
type CreateScheduleRequest struct {
	PlanID   string `json:"plan_id"`
	Name     string `json:"name"`
	CronExpr string `json:"cron_expr"`
}

// CreateSchedule handles POST /api/v1/schedules.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.PlanID) == "" || strings.TrimSpace(req.CronExpr) == "" {
		writeError(w, http.StatusBadRequest, "fields 'plan_id' and 'cron_expr' are required")
		return
	}

	if _, err := h.plans.GetByID(r.Context(), req.PlanID); err != nil {
		var notFound *domain.PlanNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.Error("get plan", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve plan")
		return
	}

	schedule := &domain.PublishSchedule{
		PlanID:   req.PlanID,
		Name:     req.Name,
		CronExpr: req.CronExpr,
		Enabled:  true,
	}
	if err := h.schedules.Create(r.Context(), schedule); err != nil {
		h.logger.Error("create schedule", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

// ListSchedules handles GET /api/v1/schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.List(r.Context())
	if err != nil {
		h.logger.Error("list schedules", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []*domain.PublishSchedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz — checks the task store is reachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.tasks.GetByID(ctx, "__readyz__"); err != nil {
		var notFound *domain.TaskNotFoundError
		if !errors.As(err, &notFound) {
			writeError(w, http.StatusServiceUnavailable, "task store not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
