package batch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfold/alchemy-api/internal/batch"
	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/store"
)

// recordingNotifier counts settlement callbacks.
type recordingNotifier struct {
	mu      sync.Mutex
	batches []*domain.Batch
	jobs    [][]*domain.Job
}

func (n *recordingNotifier) DispatchBatch(ctx context.Context, b *domain.Batch, jobs []*domain.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, b)
	n.jobs = append(n.jobs, jobs)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

// seedBatch creates a batch with n pending member jobs.
func seedBatch(t *testing.T, s *store.MemoryStore, n int) (*domain.Batch, []*domain.Job) {
	t.Helper()
	ctx := context.Background()

	batchID := uuid.New()
	var (
		ids  []uuid.UUID
		jobs []*domain.Job
	)
	for i := 0; i < n; i++ {
		job, err := domain.NewJob(
			domain.ProcessorTranslation,
			json.RawMessage(`{"text":"hi","target_language":"es"}`),
			nil,
		)
		require.NoError(t, err)
		job.BatchID = &batchID
		require.NoError(t, s.CreateJob(ctx, job))
		ids = append(ids, job.ID)
		jobs = append(jobs, job)
	}

	b, err := domain.NewBatch(ids, &domain.WebhookConfig{URL: "https://example.com/hook"})
	require.NoError(t, err)
	b.ID = batchID
	require.NoError(t, s.CreateBatch(ctx, b))
	return b, jobs
}

func completeJob(t *testing.T, s *store.MemoryStore, id uuid.UUID) *domain.Job {
	t.Helper()
	done, err := s.CompleteJob(context.Background(), id, store.CompletionParams{
		Result:      json.RawMessage(`{"ok":true}`),
		Fingerprint: "fp-" + id.String(),
		Attempts:    1,
	})
	require.NoError(t, err)
	return done
}

func failJob(t *testing.T, s *store.MemoryStore, id uuid.UUID) *domain.Job {
	t.Helper()
	failed, err := s.FailJob(context.Background(), id, store.FailureParams{
		ErrorMessage: "boom",
		Attempts:     1,
	})
	require.NoError(t, err)
	return failed
}

func TestCoordinatorSettlesWhenLastMemberFinishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	c := batch.NewCoordinator(s, s, notifier, nil)

	b, _ := seedBatch(t, s, 3)

	// Claim all three so they can reach terminal states.
	for i := 0; i < 3; i++ {
		_, err := s.ClaimJob(ctx)
		require.NoError(t, err)
	}

	members, err := s.ListJobsByBatch(ctx, b.ID)
	require.NoError(t, err)

	// First two settlements leave the batch open.
	c.OnJobSettled(ctx, completeJob(t, s, members[0].ID))
	c.OnJobSettled(ctx, failJob(t, s, members[1].ID))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SettledAt, "batch must stay open while a member is non-terminal")
	assert.Zero(t, notifier.count())

	// The last member's settlement closes the batch.
	c.OnJobSettled(ctx, completeJob(t, s, members[2].ID))

	got, err = s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SettledAt)
	require.Equal(t, 1, notifier.count())

	summary := domain.SummarizeJobs(notifier.jobs[0])
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestCoordinatorSiblingIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryStore()
	c := batch.NewCoordinator(s, s, nil, nil)

	b, _ := seedBatch(t, s, 2)

	first, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	c.OnJobSettled(ctx, failJob(t, s, first.ID))

	// The sibling is untouched by the failure: still pending, claimable,
	// and able to complete.
	members, err := s.ListJobsByBatch(ctx, b.ID)
	require.NoError(t, err)
	var sibling *domain.Job
	for _, m := range members {
		if m.ID != first.ID {
			sibling = m
		}
	}
	require.NotNil(t, sibling)
	assert.Equal(t, domain.JobStatusPending, sibling.Status)

	claimed, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, sibling.ID, claimed.ID)
	done := completeJob(t, s, claimed.ID)
	c.OnJobSettled(ctx, done)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.SettledAt)
}

func TestCoordinatorSettlesWhenLastMemberIsCancelled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	c := batch.NewCoordinator(s, s, notifier, nil)

	b, _ := seedBatch(t, s, 2)

	first, err := s.ClaimJob(ctx)
	require.NoError(t, err)
	c.OnJobSettled(ctx, failJob(t, s, first.ID))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SettledAt, "batch must stay open while a member is pending")

	// Cancellation is a terminal transition like any other; settling the
	// cancelled member closes the batch.
	members, err := s.ListJobsByBatch(ctx, b.ID)
	require.NoError(t, err)
	var second *domain.Job
	for _, m := range members {
		if m.ID != first.ID {
			second = m
		}
	}
	require.NotNil(t, second)
	require.NoError(t, s.CancelJob(ctx, second.ID))
	cancelled, err := s.GetJob(ctx, second.ID)
	require.NoError(t, err)
	c.OnJobSettled(ctx, cancelled)

	got, err = s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SettledAt, "cancelling the last open member must settle the batch")
	require.Equal(t, 1, notifier.count())

	summary := domain.SummarizeJobs(notifier.jobs[0])
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Failed)
	assert.Zero(t, summary.Pending)
}

func TestCoordinatorSettlesExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	c := batch.NewCoordinator(s, s, notifier, nil)

	b, _ := seedBatch(t, s, 4)
	members, err := s.ListJobsByBatch(ctx, b.ID)
	require.NoError(t, err)

	var settled []*domain.Job
	for _, m := range members {
		_, err := s.ClaimJob(ctx)
		require.NoError(t, err)
		settled = append(settled, completeJob(t, s, m.ID))
	}

	// All members are already terminal; every notification races to settle.
	var wg sync.WaitGroup
	for _, job := range settled {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnJobSettled(ctx, job)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, notifier.count(), "settlement must fire the callback exactly once")
}

func TestCoordinatorIgnoresStandaloneJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	c := batch.NewCoordinator(s, s, notifier, nil)

	job, err := domain.NewJob(domain.ProcessorRendering, json.RawMessage(`{"template":"x"}`), nil)
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, job))
	_, err = s.ClaimJob(ctx)
	require.NoError(t, err)

	c.OnJobSettled(ctx, completeJob(t, s, job.ID))
	assert.Zero(t, notifier.count())
}
