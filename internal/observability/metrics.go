package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics tracks authorization and resolution activity in the
// request pipeline.
type PipelineMetrics struct {
	authAttempts        metric.Int64Counter
	authFailures        metric.Int64Counter
	authSuccesses       metric.Int64Counter
	connectionsRejected metric.Int64Counter
	resolutions         metric.Int64Counter
	resolutionDuration  metric.Float64Histogram
}

// InitPipelineMetrics initializes pipeline metric instruments.
func InitPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("gqlpipeline/pipeline")

	authAttempts, err := meter.Int64Counter(
		"pipeline.auth.attempts.total",
		metric.WithDescription("Total number of authorization resolution attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		"pipeline.auth.failures.total",
		metric.WithDescription("Total number of failed claim decodes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}

	authSuccesses, err := meter.Int64Counter(
		"pipeline.auth.successes.total",
		metric.WithDescription("Total number of successful claim resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth successes counter: %w", err)
	}

	connectionsRejected, err := meter.Int64Counter(
		"pipeline.subscription.rejections.total",
		metric.WithDescription("Total number of subscription connections rejected by authentication"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection rejections counter: %w", err)
	}

	resolutions, err := meter.Int64Counter(
		"pipeline.resolutions.total",
		metric.WithDescription("Total number of wrapped field resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	resolutionDuration, err := meter.Float64Histogram(
		"pipeline.resolution.duration",
		metric.WithDescription("Duration of wrapped field resolutions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution duration histogram: %w", err)
	}

	return &PipelineMetrics{
		authAttempts:        authAttempts,
		authFailures:        authFailures,
		authSuccesses:       authSuccesses,
		connectionsRejected: connectionsRejected,
		resolutions:         resolutions,
		resolutionDuration:  resolutionDuration,
	}, nil
}

// RecordAuthAttempt records an authorization resolution attempt.
// mode is "request" or "connection".
func (m *PipelineMetrics) RecordAuthAttempt(ctx context.Context, mode string) {
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordAuthFailure records a failed claim decode.
func (m *PipelineMetrics) RecordAuthFailure(ctx context.Context, mode, reason string) {
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful claim resolution.
func (m *PipelineMetrics) RecordAuthSuccess(ctx context.Context, mode string) {
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
	))
}

// RecordConnectionRejected records a subscription connection rejected before
// resolution.
func (m *PipelineMetrics) RecordConnectionRejected(ctx context.Context, reason string) {
	m.connectionsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordResolution records a completed wrapped resolution.
func (m *PipelineMetrics) RecordResolution(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.resolutions.Add(ctx, 1, attrs)
	m.resolutionDuration.Record(ctx, duration.Seconds(), attrs)
}
