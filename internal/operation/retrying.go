package operation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lexfold/alchemy-api/internal/domain"
)

// RetryPolicy configures the retry decorator.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; it doubles per
	// attempt after that.
	BaseDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration

	// AttemptTimeout bounds each individual attempt. Zero means the
	// attempt inherits the caller's deadline.
	AttemptTimeout time.Duration
}

// RetryingOperation re-invokes the inner operation on transient failures
// with capped exponential backoff. Permanent failures return immediately,
// retrying a rejected prompt cannot change the answer.
type RetryingOperation struct {
	inner  Operation
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetryingOperation wraps inner with the given retry policy.
func NewRetryingOperation(inner Operation, policy RetryPolicy, logger *slog.Logger) *RetryingOperation {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingOperation{
		inner:  inner,
		policy: policy,
		logger: logger.With(slog.String("component", "retrying_operation")),
	}
}

var _ Operation = (*RetryingOperation)(nil)

// Invoke implements Operation.
func (o *RetryingOperation) Invoke(ctx context.Context, job *domain.Job) (*Outcome, error) {
	backoff := retry.NewExponential(o.policy.BaseDelay)
	if o.policy.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(o.policy.MaxDelay, backoff)
	}
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithMaxRetries(uint64(o.policy.MaxAttempts-1), backoff)

	var (
		outcome  *Outcome
		attempts int
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		attemptCtx := ctx
		if o.policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.policy.AttemptTimeout)
			defer cancel()
		}

		result, err := o.inner.Invoke(attemptCtx, job)
		if err != nil {
			if IsTransient(err) {
				o.logger.WarnContext(ctx, "transient failure, will retry",
					slog.String("job_id", job.ID.String()),
					slog.Int("attempt", attempts),
					slog.Int("max_attempts", o.policy.MaxAttempts),
					slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			o.logger.WarnContext(ctx, "permanent failure, not retrying",
				slog.String("job_id", job.ID.String()),
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()))
			return err
		}

		outcome = result
		return nil
	})
	if err != nil {
		if IsTransient(err) {
			err = fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempts, err)
		}
		return nil, &Error{Attempts: attempts, Err: err}
	}

	outcome.Attempts = attempts
	return outcome, nil
}
