package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"imagegen/internal/apperrors"
	"imagegen/internal/observability"
	"imagegen/pkg/backoff"
)

// Polling defaults.
const (
	DefaultMaxAttempts  = 60
	DefaultPollInterval = 5 * time.Second
)

// StatusChecker queries the remote status of a task.
type StatusChecker interface {
	Status(ctx context.Context, token, jobID string) (*RemoteStatus, error)
}

// PollerConfig holds configuration for a Poller.
type PollerConfig struct {
	MaxAttempts int                    // Status queries before giving up (default 60)
	Interval    time.Duration          // Fixed delay between queries (default 5s)
	MaxWait     time.Duration          // Wall-clock cap across all attempts (0 disables)
	Metrics     *observability.Metrics // Metrics recorder (optional)
}

// Poller drives a submitted job to a terminal state.
//
// Attempts are strictly sequential: attempt k+1 starts only after the answer
// (or failure) of attempt k has been observed. A failed status query does not
// advance the job; it only consumes its own attempt.
type Poller struct {
	checker     StatusChecker
	maxAttempts int
	policy      backoff.Policy
	maxWait     time.Duration
	metrics     *observability.Metrics

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewPoller creates a poller with a fixed interval policy.
func NewPoller(checker StatusChecker, cfg PollerConfig) *Poller {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		checker:     checker,
		maxAttempts: maxAttempts,
		policy:      backoff.Fixed(interval),
		maxWait:     cfg.MaxWait,
		metrics:     cfg.Metrics,
		sleep:       backoff.Sleep,
		now:         time.Now,
	}
}

// Poll queries the job status until it succeeds, fails, or the attempt budget
// runs out. It returns nil only when the job reached StatusSucceeded; the
// job's Artifacts then hold the provider's output references.
//
// A job that is already terminal is not queried again; Poll reports its
// existing outcome.
func (p *Poller) Poll(ctx context.Context, token string, j *Job) error {
	if j.Status.Terminal() {
		return outcome(j, nil)
	}

	logger := slog.With("jobId", j.ID)
	var deadline time.Time
	if p.maxWait > 0 {
		deadline = p.now().Add(p.maxWait)
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.policy.Delay(attempt-1)); err != nil {
				return fmt.Errorf("polling task %s: %w", j.ID, err)
			}
		}
		if !deadline.IsZero() && !p.now().Before(deadline) {
			logger.Warn("Maximum wait exceeded", "maxWait", p.maxWait, "attempts", j.Attempts)
			break
		}

		j.Attempts = attempt
		remote, err := p.checker.Status(ctx, token, j.ID)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("polling task %s: %w", j.ID, ctx.Err())
			}
			lastErr = err
			logger.Warn("Status check failed", "attempt", attempt, "error", err)
			if p.metrics != nil {
				p.metrics.RecordTransientError(ctx)
			}
			continue
		}

		next := classify(remote.Status)
		logger.Info("Task status", "attempt", attempt, "status", remote.Status)
		if p.metrics != nil {
			p.metrics.RecordPollAttempt(ctx, string(next))
		}

		switch next {
		case StatusSucceeded:
			j.Artifacts = remote.Artifacts
			_ = j.Transition(StatusSucceeded)
			return nil
		case StatusFailed:
			j.Detail = remote.Detail
			_ = j.Transition(StatusFailed)
			return outcome(j, nil)
		default:
			if j.Status != StatusRunning {
				_ = j.Transition(StatusRunning)
			}
		}
	}

	_ = j.Transition(StatusTimedOut)
	return outcome(j, lastErr)
}

// outcome converts a terminal job into the error the caller receives.
func outcome(j *Job, lastErr error) error {
	switch j.Status {
	case StatusSucceeded:
		return nil
	case StatusFailed:
		return apperrors.RemoteFailure(j.ID, j.Detail)
	default:
		return apperrors.Timeout(j.ID, j.Attempts, lastErr)
	}
}
