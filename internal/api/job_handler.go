package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexfold/alchemy-api/internal/api/shared"
	"github.com/lexfold/alchemy-api/internal/platform/logger"
	"github.com/lexfold/alchemy-api/internal/service"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobService *service.JobService
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobService *service.JobService, log *slog.Logger) *JobHandler {
	if log == nil {
		log = slog.Default()
	}
	return &JobHandler{
		jobService: jobService,
		logger:     log.With(slog.String("component", "job_handler")),
	}
}

// Submit handles POST /jobs requests.
// Submission is synchronous validation plus an asynchronous promise: a
// valid request is accepted with 202 and processed in the background.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	job, err := h.jobService.SubmitJob(r.Context(), req.toJobRequest())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("job accepted",
		slog.String("job_id", job.ID.String()),
		slog.String("processor_kind", string(job.ProcessorKind)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, NewJobResponse(job))
}

// Get handles GET /jobs/{id} requests.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobService.GetJob(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}

// Cancel handles POST /jobs/{id}/cancel requests.
// Only pending jobs are cancellable; anything else conflicts.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobService.CancelJob(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("job cancelled", slog.String("job_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}
