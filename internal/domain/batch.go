package domain

import (
	"time"

	"github.com/google/uuid"
)

// Batch is a named group of jobs submitted together and tracked for joint
// settlement. Membership is immutable after creation; settled_at is set
// the instant the last member job reaches a terminal state.
type Batch struct {
	ID        uuid.UUID      `json:"id"`
	JobIDs    []uuid.UUID    `json:"job_ids"`
	Webhook   *WebhookConfig `json:"webhook,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	SettledAt *time.Time     `json:"settled_at,omitempty"`
}

// NewBatch creates a batch over the given member job IDs.
// Returns an error if the membership is empty or contains duplicates, or
// if the webhook configuration is invalid.
func NewBatch(jobIDs []uuid.UUID, webhook *WebhookConfig) (*Batch, error) {
	if len(jobIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	seen := make(map[uuid.UUID]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateBatchMember
		}
		seen[id] = struct{}{}
	}

	if webhook != nil {
		if err := webhook.Validate(); err != nil {
			return nil, err
		}
	}

	// Copy to keep membership immutable from the caller's slice.
	members := make([]uuid.UUID, len(jobIDs))
	copy(members, jobIDs)

	return &Batch{
		ID:        uuid.New(),
		JobIDs:    members,
		Webhook:   webhook,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Settled reports whether every member job has reached a terminal state.
func (b *Batch) Settled() bool {
	return b.SettledAt != nil
}

// BatchSummary holds the aggregate counts over a batch's member jobs.
// Pending counts every non-terminal member, claimed or not.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// SummarizeJobs computes the aggregate counts for a batch's member jobs.
// Cancelled members count as failed for settlement purposes: they are
// terminal and did not succeed.
func SummarizeJobs(jobs []*Job) BatchSummary {
	summary := BatchSummary{Total: len(jobs)}
	for _, job := range jobs {
		switch {
		case job.Status == JobStatusCompleted:
			summary.Succeeded++
		case job.Status.IsTerminal():
			summary.Failed++
		default:
			summary.Pending++
		}
	}
	return summary
}
