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

// BatchHandler handles batch-related HTTP requests
type BatchHandler struct {
	jobService *service.JobService
	logger     *slog.Logger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(jobService *service.JobService, log *slog.Logger) *BatchHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BatchHandler{
		jobService: jobService,
		logger:     log.With(slog.String("component", "batch_handler")),
	}
}

// Submit handles POST /batches requests.
// Admission is all-or-nothing: one invalid member rejects the whole batch.
func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req SubmitBatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	requests := make([]service.JobRequest, 0, len(req.Jobs))
	for _, jobReq := range req.Jobs {
		requests = append(requests, jobReq.toJobRequest())
	}

	result, err := h.jobService.SubmitBatch(r.Context(), requests, req.Webhook.toWebhookConfig())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Debug("batch accepted",
		slog.String("batch_id", result.Batch.ID.String()),
		slog.Int("members", len(result.Jobs)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, NewBatchResponse(result))
}

// Get handles GET /batches/{id} requests.
// The summary is computed from the members' live states, so callers can
// watch progress before settlement.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	result, err := h.jobService.GetBatch(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewBatchResponse(result))
}
