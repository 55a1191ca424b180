package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/api"
	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/inference"
	"github.com/lexfold/alchemy-api/internal/processor"
	"github.com/lexfold/alchemy-api/internal/service"
	"github.com/lexfold/alchemy-api/internal/store"
)

// newTestRouter wires handlers over an in-memory store the way the
// server does.
func newTestRouter(s *store.MemoryStore) http.Handler {
	client := &inference.MockClient{}
	registry := processor.NewRegistry(
		processor.NewTranslation(client),
		processor.NewTranscription(client),
		processor.NewExtraction(client),
		processor.NewRendering(client),
	)
	svc := service.NewJobService(s, s, registry, nil, nil, nil)
	jobHandler := api.NewJobHandler(svc, nil)
	batchHandler := api.NewBatchHandler(svc, nil)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.Submit)
		r.Get("/jobs/{id}", jobHandler.Get)
		r.Post("/jobs/{id}/cancel", jobHandler.Cancel)
		r.Post("/batches", batchHandler.Submit)
		r.Get("/batches/{id}", batchHandler.Get)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJobEndpoint(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	rec := doJSON(t, router, http.MethodPost, "/api/jobs",
		`{"processor_kind":"translation","payload":{"text":"hello","target_language":"es"},"webhook":{"url":"https://example.com/hook","include_result":true}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "translation", resp.ProcessorKind)
	require.NotNil(t, resp.Webhook)
	assert.False(t, resp.Webhook.Delivered)
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err)
}

func TestSubmitJobEndpointRejectsBadRequests(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"processor_kind":`},
		{"missing payload", `{"processor_kind":"translation"}`},
		{"unknown kind", `{"processor_kind":"summarization","payload":{"text":"x"}}`},
		{"invalid payload", `{"processor_kind":"translation","payload":{"text":"x"}}`},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, router, http.MethodPost, "/api/jobs", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetJobEndpoint(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	router := newTestRouter(s)
	ctx := context.Background()

	rec := doJSON(t, router, http.MethodPost, "/api/jobs",
		`{"processor_kind":"translation","payload":{"text":"hello","target_language":"es"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Settle the job through the store and read it back.
	claimed, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	_, err = s.CompleteJob(ctx, claimed.ID, store.CompletionParams{
		Result:      json.RawMessage(`{"translated_text":"hola"}`),
		Fingerprint: "fp",
		Attempts:    1,
	})
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodGet, "/api/jobs/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "completed", got.Status)
	assert.JSONEq(t, `{"translated_text":"hola"}`, string(got.Result))
	assert.Equal(t, 1, got.AttemptCount)
}

func TestGetJobEndpointNotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	rec := doJSON(t, router, http.MethodGet, "/api/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJobEndpoint(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs",
		`{"processor_kind":"rendering","payload":{"template":"hi"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)

	// A second cancel conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelClaimedJobConflicts(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	router := newTestRouter(s)

	rec := doJSON(t, router, http.MethodPost, "/api/jobs",
		`{"processor_kind":"rendering","payload":{"template":"hi"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	_, err := s.ClaimJob(context.Background())
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPost, "/api/jobs/"+created.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitBatchEndpoint(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	rec := doJSON(t, router, http.MethodPost, "/api/batches",
		`{"jobs":[
			{"processor_kind":"translation","payload":{"text":"a","target_language":"es"}},
			{"processor_kind":"rendering","payload":{"template":"hi {name}"}}
		],"webhook":{"url":"https://example.com/batch"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Jobs, 2)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.Pending)
	assert.Nil(t, resp.SettledAt)

	rec = doJSON(t, router, http.MethodGet, "/api/batches/"+resp.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitBatchEndpointRejectsInvalidMember(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	rec := doJSON(t, router, http.MethodPost, "/api/batches",
		`{"jobs":[
			{"processor_kind":"translation","payload":{"text":"a","target_language":"es"}},
			{"processor_kind":"translation","payload":{"text":"b"}}
		]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/batches", `{"jobs":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatchEndpointNotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(store.NewMemoryStore())

	rec := doJSON(t, router, http.MethodGet, "/api/batches/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusNotFound, api.MapErrorToStatusCode(store.ErrJobNotFound))
	assert.Equal(t, http.StatusNotFound, api.MapErrorToStatusCode(store.ErrBatchNotFound))
	assert.Equal(t, http.StatusConflict, api.MapErrorToStatusCode(store.ErrNotPending))
	assert.Equal(t, http.StatusConflict, api.MapErrorToStatusCode(store.ErrAlreadyTerminal))
	assert.Equal(t, http.StatusBadRequest, api.MapErrorToStatusCode(domain.ErrValidation))
	assert.Equal(t, http.StatusBadRequest, api.MapErrorToStatusCode(domain.ErrInvalidProcessorKind))
	assert.Equal(t, http.StatusInternalServerError, api.MapErrorToStatusCode(assert.AnError))
}
