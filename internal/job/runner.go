package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"imagegen/internal/apperrors"
	"imagegen/internal/observability"
)

// Remote is the inference service a job runs on.
type Remote interface {
	StatusChecker

	// Submit sends a generation request and returns the task identifier
	// assigned by the service. It never retries.
	Submit(ctx context.Context, token string, req *Request) (string, error)
}

// TokenSource supplies the bearer token for a run.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Notifier is told about every job that reached a terminal state.
type Notifier interface {
	Notify(ctx context.Context, j *Job, res *Result, err error) error
}

// RunnerConfig holds the collaborators of a Runner.
type RunnerConfig struct {
	Remote   Remote                 // required
	Tokens   TokenSource            // required
	Poller   *Poller                // default: NewPoller(Remote, PollerConfig{})
	Resolver *Resolver              // default: NewResolver(nil, nil, Metrics)
	Notifier Notifier               // optional
	Metrics  *observability.Metrics // optional
}

// Runner executes exactly one job: submit, poll, resolve.
type Runner struct {
	remote   Remote
	tokens   TokenSource
	poller   *Poller
	resolver *Resolver
	notifier Notifier
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Remote == nil {
		return nil, errors.New("remote is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token source is required")
	}

	poller := cfg.Poller
	if poller == nil {
		poller = NewPoller(cfg.Remote, PollerConfig{Metrics: cfg.Metrics})
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(nil, nil, cfg.Metrics)
	}

	return &Runner{
		remote:   cfg.Remote,
		tokens:   cfg.Tokens,
		poller:   poller,
		resolver: resolver,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// Run validates req, submits it, polls it to a terminal state and, on success,
// materializes its artifact. Every failure is returned as an error classified
// by the apperrors sentinels; nothing is retried end-to-end.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	applyDefaults(req)
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := r.resolver.Accepts(req.Output); err != nil {
		return nil, err
	}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	j, err := r.Submit(ctx, token, req)
	if err != nil {
		return nil, err
	}

	logger := slog.With("jobId", j.ID, "model", req.Model)
	logger.Info("Task submitted")

	if err := r.poller.Poll(ctx, token, j); err != nil {
		r.finish(ctx, logger, req, j, nil, err)
		return nil, err
	}

	res, err := r.resolver.Resolve(ctx, j, req.Output)
	r.finish(ctx, logger, req, j, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Submit sends req and returns the job in its initial state.
func (r *Runner) Submit(ctx context.Context, token string, req *Request) (*Job, error) {
	id, err := r.remote.Submit(ctx, token, req)
	if err != nil {
		if r.metrics != nil {
			var appErr *apperrors.Error
			status := 0
			if errors.As(err, &appErr) {
				status = appErr.StatusCode
			}
			r.metrics.RecordSubmissionError(ctx, req.Model, status)
		}
		return nil, err
	}
	if id == "" {
		return nil, apperrors.Submission(200, "response did not contain a task_id", nil)
	}

	if r.metrics != nil {
		r.metrics.RecordJobSubmitted(ctx, req.Model)
	}
	return New(id, r.now()), nil
}

// finish records the terminal outcome and sends the completion notification.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, req *Request, j *Job, res *Result, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Warn("Run cancelled", "attempts", j.Attempts)
		return
	}

	if err != nil {
		logger.Error("Job failed", "status", j.Status, "attempts", j.Attempts, "error", err)
	} else {
		logger.Info("Job completed", "attempts", j.Attempts, "path", res.Location)
	}

	if r.metrics != nil {
		r.metrics.RecordJobCompleted(ctx, req.Model, string(j.Status), r.now().Sub(j.CreatedAt).Seconds())
	}

	if r.notifier != nil {
		if nerr := r.notifier.Notify(ctx, j, res, err); nerr != nil {
			logger.Warn("Failed to send completion event", "error", nerr)
		}
	}
}
