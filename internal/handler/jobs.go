package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/orchestrator"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobHandler exposes the scrape-job control surface: submit a model/region
// sweep and poll its status, backed by the Orchestrator engine.
type JobHandler struct {
	store    *store.Store
	engine   *orchestrator.Engine
	logger   *slog.Logger
	validate *validator.Validate
}

func NewJobHandler(st *store.Store, engine *orchestrator.Engine, logger *slog.Logger) *JobHandler {
	return &JobHandler{store: st, engine: engine, logger: logger, validate: validator.New()}
}

type createJobRequest struct {
	Model  string `json:"model" validate:"required"`
	Region string `json:"region"`
}

// CreateJob runs a scrape job to completion and returns its summary. This
// blocks for the duration of the sweep; callers that want to fire-and-poll
// should not wait on the response and should use GetJob instead.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.jsonError(w, "validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	dealers, err := h.store.ListActiveDealers(ctx, req.Region)
	if err != nil {
		h.logger.Error("list_active_dealers_failed", slog.String("error", err.Error()))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(dealers) == 0 {
		h.jsonError(w, "no active dealers match the requested region", http.StatusBadRequest)
		return
	}

	summary, err := h.engine.RunJob(ctx, dealers, req.Model, req.Region)
	if err != nil {
		h.logger.Error("run_job_failed", slog.String("error", err.Error()))
		h.jsonError(w, "failed to run job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("job_submitted",
		slog.String("job_id", summary.JobID.String()),
		slog.String("model", req.Model),
		slog.Int("success_count", summary.SuccessCount),
		slog.Int("fail_count", summary.FailCount),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(summary)
}

// GetJob returns a job's current row, for polling a job submitted earlier.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	jobID, err := uuid.Parse(idStr)
	if err != nil {
		h.jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	tasks, err := h.store.ListTasksForJob(ctx, jobID)
	if err != nil {
		h.logger.Error("list_tasks_failed", slog.String("job_id", idStr), slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		*domain.ScrapeJob
		Tasks []domain.ScrapeTask `json:"tasks,omitempty"`
	}{ScrapeJob: job, Tasks: tasks})
}

func (h *JobHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
