// Copyright 2026 © The QLCrew Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/qlcrew/pkg/errors"
)

// PipelineMetrics counts steps, capability invocations and failures and
// records step latency.
type PipelineMetrics struct {
	steps        metric.Int64Counter
	invocations  metric.Int64Counter
	failures     metric.Int64Counter
	stepDuration metric.Float64Histogram
}

// NewPipelineMetrics creates the instruments on the global meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	return NewPipelineMetricsWithMeter(otel.Meter("qlcrew/pipeline"))
}

// NewPipelineMetricsWithMeter creates the instruments on meter.
func NewPipelineMetricsWithMeter(meter metric.Meter) (*PipelineMetrics, error) {
	steps, err := meter.Int64Counter("qlcrew.steps.total",
		metric.WithDescription("Steps produced, by worker"))
	if err != nil {
		return nil, err
	}
	invocations, err := meter.Int64Counter("qlcrew.invocations.total",
		metric.WithDescription("Capability invocations, by capability and outcome"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("qlcrew.failures.total",
		metric.WithDescription("Failures by error code and component"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("qlcrew.step.duration",
		metric.WithDescription("Step wall time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &PipelineMetrics{
		steps:        steps,
		invocations:  invocations,
		failures:     failures,
		stepDuration: stepDuration,
	}, nil
}

// RecordStep counts a step and records its duration.
func (m *PipelineMetrics) RecordStep(ctx context.Context, worker string, failed bool, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrWorker, worker),
		attribute.Bool(AttrStepFailed, failed),
	)
	m.steps.Add(ctx, 1, attrs)
	m.stepDuration.Record(ctx, durationMs, attrs)
}

// RecordInvocation counts a capability invocation.
func (m *PipelineMetrics) RecordInvocation(ctx context.Context, capability string, success bool) {
	if m == nil {
		return
	}
	m.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCapability, capability),
		attribute.Bool(AttrCallSuccess, success),
	))
}

// RecordFailure counts err under its error code.
func (m *PipelineMetrics) RecordFailure(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	var ce *errors.CrewError
	if stderrors.As(err, &ce) {
		code, recoverable = string(ce.Code), ce.RecoverableString()
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", code),
		attribute.String("component", component),
		attribute.String("recoverable", recoverable),
	))
}
