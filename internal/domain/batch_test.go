package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/domain"
)

func TestNewBatch(t *testing.T) {
	t.Run("valid batch", func(t *testing.T) {
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		batch, err := domain.NewBatch(ids, nil)
		require.NoError(t, err)

		assert.Equal(t, ids, batch.JobIDs)
		assert.False(t, batch.Settled())
	})

	t.Run("empty membership rejected", func(t *testing.T) {
		_, err := domain.NewBatch(nil, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyBatch)
	})

	t.Run("duplicate membership rejected", func(t *testing.T) {
		id := uuid.New()
		_, err := domain.NewBatch([]uuid.UUID{id, id}, nil)
		assert.ErrorIs(t, err, domain.ErrDuplicateBatchMember)
	})

	t.Run("membership copied from caller slice", func(t *testing.T) {
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		batch, err := domain.NewBatch(ids, nil)
		require.NoError(t, err)

		ids[0] = uuid.New()
		assert.NotEqual(t, ids[0], batch.JobIDs[0])
	})
}

func TestSummarizeJobs(t *testing.T) {
	now := time.Now().UTC()

	jobWithStatus := func(t *testing.T, target domain.JobStatus) *domain.Job {
		job, err := domain.NewJob(domain.ProcessorTranslation,
			[]byte(`{"text":"hola","source":"es","target":"en"}`), nil)
		require.NoError(t, err)

		j := *job
		switch target {
		case domain.JobStatusPending:
		case domain.JobStatusProcessing:
			j, err = j.WithClaim(now)
			require.NoError(t, err)
		case domain.JobStatusCompleted:
			j, err = j.WithClaim(now)
			require.NoError(t, err)
			j, err = j.WithCompletion(nil, 1, false, now)
			require.NoError(t, err)
		case domain.JobStatusFailed:
			j, err = j.WithClaim(now)
			require.NoError(t, err)
			j, err = j.WithFailure("boom", 1, now)
			require.NoError(t, err)
		case domain.JobStatusCancelled:
			j, err = j.WithCancellation(now)
			require.NoError(t, err)
		}
		return &j
	}

	jobs := []*domain.Job{
		jobWithStatus(t, domain.JobStatusCompleted),
		jobWithStatus(t, domain.JobStatusCompleted),
		jobWithStatus(t, domain.JobStatusFailed),
		jobWithStatus(t, domain.JobStatusCancelled),
		jobWithStatus(t, domain.JobStatusProcessing),
		jobWithStatus(t, domain.JobStatusPending),
	}

	summary := domain.SummarizeJobs(jobs)
	assert.Equal(t, domain.BatchSummary{
		Total:     6,
		Succeeded: 2,
		Failed:    2,
		Pending:   2,
	}, summary)
}

func TestWebhookConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https url", url: "https://example.com/hooks/jobs"},
		{name: "http url", url: "http://localhost:9999/hook"},
		{name: "empty", url: "", wantErr: true},
		{name: "no scheme", url: "example.com/hook", wantErr: true},
		{name: "bad scheme", url: "ftp://example.com/hook", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &domain.WebhookConfig{URL: tt.url}
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidWebhookURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
