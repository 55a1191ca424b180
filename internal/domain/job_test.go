package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/domain"
)

func validPayload() json.RawMessage {
	return json.RawMessage(`{"source_uri":"s3://bucket/audio.wav","language":"en"}`)
}

func TestNewJob(t *testing.T) {
	t.Run("valid job", func(t *testing.T) {
		job, err := domain.NewJob(domain.ProcessorTranscription, validPayload(), nil)
		require.NoError(t, err)

		assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", job.ID.String())
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, 0, job.AttemptCount)
		assert.False(t, job.IsFromCache)
		assert.False(t, job.CreatedAt.IsZero())
		assert.Nil(t, job.ClaimedAt)
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		_, err := domain.NewJob(domain.ProcessorTranslation, nil, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyPayload)
	})

	t.Run("unknown processor kind rejected", func(t *testing.T) {
		_, err := domain.NewJob(domain.ProcessorKind("summarization"), validPayload(), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidProcessorKind)
	})

	t.Run("invalid webhook rejected", func(t *testing.T) {
		_, err := domain.NewJob(domain.ProcessorRendering, validPayload(),
			&domain.WebhookConfig{URL: "ftp://example.com/hook"})
		assert.ErrorIs(t, err, domain.ErrInvalidWebhookURL)
	})
}

func TestParseProcessorKind(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.ProcessorKind
		wantErr bool
	}{
		{raw: "transcription", want: domain.ProcessorTranscription},
		{raw: "translation", want: domain.ProcessorTranslation},
		{raw: "extraction", want: domain.ProcessorExtraction},
		{raw: "rendering", want: domain.ProcessorRendering},
		{raw: "TRANSCRIPTION", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "ocr", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			kind, err := domain.ParseProcessorKind(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidProcessorKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    domain.JobStatus
		to      domain.JobStatus
		allowed bool
	}{
		{domain.JobStatusPending, domain.JobStatusProcessing, true},
		{domain.JobStatusPending, domain.JobStatusCancelled, true},
		{domain.JobStatusPending, domain.JobStatusCompleted, false},
		{domain.JobStatusPending, domain.JobStatusFailed, false},
		{domain.JobStatusProcessing, domain.JobStatusCompleted, true},
		{domain.JobStatusProcessing, domain.JobStatusFailed, true},
		{domain.JobStatusProcessing, domain.JobStatusCancelled, false},
		{domain.JobStatusProcessing, domain.JobStatusPending, false},
		{domain.JobStatusCompleted, domain.JobStatusFailed, false},
		{domain.JobStatusCompleted, domain.JobStatusPending, false},
		{domain.JobStatusFailed, domain.JobStatusProcessing, false},
		{domain.JobStatusCancelled, domain.JobStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobBuilders(t *testing.T) {
	now := time.Now().UTC()

	newJob := func(t *testing.T) domain.Job {
		job, err := domain.NewJob(domain.ProcessorExtraction, validPayload(), nil)
		require.NoError(t, err)
		return *job
	}

	t.Run("claim then complete", func(t *testing.T) {
		job := newJob(t)

		claimed, err := job.WithClaim(now)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
		require.NotNil(t, claimed.ClaimedAt)

		// The original value is untouched.
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Nil(t, job.ClaimedAt)

		result := json.RawMessage(`{"text":"hello"}`)
		done, err := claimed.WithCompletion(result, 2, false, now)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, done.Status)
		assert.Equal(t, 2, done.AttemptCount)
		assert.False(t, done.IsFromCache)
		require.NotNil(t, done.CompletedAt)
		assert.True(t, done.IsTerminal())
	})

	t.Run("claim then fail", func(t *testing.T) {
		job := newJob(t)

		claimed, err := job.WithClaim(now)
		require.NoError(t, err)

		failed, err := claimed.WithFailure("operation exhausted retries", 3, now)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, failed.Status)
		assert.Equal(t, "operation exhausted retries", failed.ErrorMessage)
		assert.Equal(t, 3, failed.AttemptCount)
	})

	t.Run("cancel only before claim", func(t *testing.T) {
		job := newJob(t)

		cancelled, err := job.WithCancellation(now)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)

		claimed, err := job.WithClaim(now)
		require.NoError(t, err)
		_, err = claimed.WithCancellation(now)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("no transition out of terminal", func(t *testing.T) {
		job := newJob(t)
		claimed, err := job.WithClaim(now)
		require.NoError(t, err)
		done, err := claimed.WithCompletion(nil, 1, true, now)
		require.NoError(t, err)

		_, err = done.WithStatus(domain.JobStatusFailed)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		_, err = done.WithStatus(domain.JobStatusProcessing)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("fingerprint immutable once set", func(t *testing.T) {
		job := newJob(t)

		withFP, err := job.WithFingerprint("abc123")
		require.NoError(t, err)
		assert.Equal(t, "abc123", withFP.Fingerprint)

		// Setting the same value again is a no-op.
		same, err := withFP.WithFingerprint("abc123")
		require.NoError(t, err)
		assert.Equal(t, "abc123", same.Fingerprint)

		_, err = withFP.WithFingerprint("def456")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
