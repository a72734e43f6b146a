package observability

import (
	"context"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the counters and histograms recorded during a run:
// - Traffic: submissions, status checks, rendered diagrams
// - Errors: rejected submissions, transient status failures, failed jobs
// - Latency: end-to-end job duration
type Metrics struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	// Job metrics
	JobsSubmitted    metric.Int64Counter
	SubmissionErrors metric.Int64Counter
	JobsCompleted    metric.Int64Counter
	JobDuration      metric.Float64Histogram

	// Poll metrics
	PollAttempts    metric.Int64Counter
	TransientErrors metric.Int64Counter

	// Artifact metrics
	ArtifactBytes metric.Int64Counter

	// Diagram metrics
	DiagramsRendered metric.Int64Counter
}

// NewMetrics creates all instruments behind a Prometheus exporter bound to a
// private registry, so repeated calls never collide.
func NewMetrics(ctx context.Context) (*Metrics, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("imagegen")
	m := &Metrics{meter: meter, provider: provider, registry: registry}

	m.JobsSubmitted, err = meter.Int64Counter(
		"jobs_submitted_total",
		metric.WithDescription("Total number of generation tasks accepted by the remote"),
	)
	if err != nil {
		return nil, err
	}

	m.SubmissionErrors, err = meter.Int64Counter(
		"job_submission_errors_total",
		metric.WithDescription("Total number of generation requests rejected by the remote"),
	)
	if err != nil {
		return nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter(
		"jobs_completed_total",
		metric.WithDescription("Total number of jobs that reached a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"job_duration_seconds",
		metric.WithDescription("Time from submission to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	m.PollAttempts, err = meter.Int64Counter(
		"job_poll_attempts_total",
		metric.WithDescription("Total number of status queries issued"),
	)
	if err != nil {
		return nil, err
	}

	m.TransientErrors, err = meter.Int64Counter(
		"job_poll_errors_total",
		metric.WithDescription("Total number of status queries that failed and were retried"),
	)
	if err != nil {
		return nil, err
	}

	m.ArtifactBytes, err = meter.Int64Counter(
		"artifact_bytes_total",
		metric.WithDescription("Total bytes of artifacts written"),
	)
	if err != nil {
		return nil, err
	}

	m.DiagramsRendered, err = meter.Int64Counter(
		"diagrams_rendered_total",
		metric.WithDescription("Total number of diagrams rendered"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// WriteTextfile flushes the metrics to a file for the node_exporter textfile
// collector. Neither binary serves HTTP, so this is the only export path.
func (m *Metrics) WriteTextfile(path string) error {
	return promclient.WriteToTextfile(path, m.registry)
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// RecordJobSubmitted records a task accepted by the remote.
func (m *Metrics) RecordJobSubmitted(ctx context.Context, model string) {
	m.JobsSubmitted.Add(ctx, 1, metric.WithAttributes(modelAttr(model)))
}

// RecordSubmissionError records a rejected generation request.
func (m *Metrics) RecordSubmissionError(ctx context.Context, model string, statusCode int) {
	m.SubmissionErrors.Add(ctx, 1, metric.WithAttributes(modelAttr(model), statusAttr(statusCode)))
}

// RecordPollAttempt records one status query and the local state it produced.
func (m *Metrics) RecordPollAttempt(ctx context.Context, state string) {
	m.PollAttempts.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordTransientError records a failed status query that will be retried.
func (m *Metrics) RecordTransientError(ctx context.Context) {
	m.TransientErrors.Add(ctx, 1)
}

// RecordJobCompleted records a job reaching a terminal state.
func (m *Metrics) RecordJobCompleted(ctx context.Context, model, state string, durationSeconds float64) {
	attrs := metric.WithAttributes(modelAttr(model), stateAttr(state))
	m.JobsCompleted.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, durationSeconds, attrs)
}

// RecordArtifactWritten records the size of a materialized artifact.
func (m *Metrics) RecordArtifactWritten(ctx context.Context, scheme string, bytes int) {
	m.ArtifactBytes.Add(ctx, int64(bytes), metric.WithAttributes(schemeAttr(scheme)))
}

// RecordDiagramRendered records a diagram render outcome.
func (m *Metrics) RecordDiagramRendered(ctx context.Context, format string, success bool) {
	m.DiagramsRendered.Add(ctx, 1, metric.WithAttributes(formatAttr(format), successAttr(success)))
}
