package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/application/services"
	"github.com/gpazevedo/alex/domain/core/entities"
	"github.com/gpazevedo/alex/domain/core/valueobjects"
	"github.com/gpazevedo/alex/pkg/common"
	pkgerrors "github.com/gpazevedo/alex/pkg/errors"
)

// Job list limits
const (
	DefaultJobLimit = 20
	MaxJobLimit     = 100
)

// JobHandler serves the caller's job ledger
type JobHandler struct {
	base
	jobs   *services.JobService
	logger *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs *services.JobService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		base:   base{errors: errorHandler},
		jobs:   jobs,
		logger: logger,
	}
}

// CreateJobRequest is the body of POST /jobs
type CreateJobRequest struct {
	JobType string           `json:"job_type" validate:"required,max=100"`
	Request entities.Payload `json:"request_payload,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /jobs/{jobID}/status
type UpdateStatusRequest struct {
	Status       string `json:"status" validate:"required"`
	ErrorMessage string `json:"error_message,omitempty" validate:"max=2000"`
}

// ListJobs handles GET /jobs?status&limit
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	limit, err := common.ExtractLimit(r, DefaultJobLimit, MaxJobLimit)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}
	filter := ports.JobFilter{Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := valueobjects.ParseJobStatus(raw)
		if err != nil {
			h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
			return
		}
		filter.Status = &status
	}

	jobs, err := h.jobs.List(r.Context(), userID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.Create(r.Context(), userID, req.JobType, req.Request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Job created", zap.String("userID", userID), zap.String("jobID", job.ID), zap.String("jobType", job.JobType))
	common.RespondJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /jobs/{jobID}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, job)
}

// UpdateStatus handles PATCH /jobs/{jobID}/status
func (h *JobHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := valueobjects.ParseJobStatus(req.Status)
	if err != nil {
		h.fail(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	job, err := h.jobs.UpdateStatus(r.Context(), userID, chi.URLParam(r, "jobID"), status, req.ErrorMessage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, job)
}

// UpdatePayload handles PUT /jobs/{jobID}/{stage}
func (h *JobHandler) UpdatePayload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	field, known := entities.JobFieldForStage(chi.URLParam(r, "stage"))
	if !known {
		h.fail(w, r, pkgerrors.NewNotFoundError("job stage "+chi.URLParam(r, "stage")))
		return
	}

	var payload entities.Payload
	if err := common.ParseJSONBody(w, r, &payload, common.MaxBodyBytes); err != nil {
		h.fail(w, r, pkgerrors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}
	if payload == nil {
		h.fail(w, r, pkgerrors.NewValidationError("payload must be a JSON object"))
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if err := h.jobs.UpdatePayload(r.Context(), userID, jobID, field, payload); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
