// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunMetrics tracks orchestrator activity for production monitoring.
type RunMetrics struct {
	iterationCounter metric.Int64Counter
	toolCallCounter  metric.Int64Counter
	toolErrorCounter metric.Int64Counter
	rateLimitCounter metric.Int64Counter
	modelLatencyMs   metric.Float64Histogram
}

var (
	runMetricsOnce sync.Once
	runMetrics     *RunMetrics
)

// Metrics returns the process-wide run metrics, creating them on first use.
// Instrument creation errors degrade to no-op instruments.
func Metrics() *RunMetrics {
	runMetricsOnce.Do(func() {
		meter := otel.Meter("heuris/agent")
		m := &RunMetrics{}
		m.iterationCounter, _ = meter.Int64Counter(
			"heuris.agent.iterations",
			metric.WithDescription("Run-loop iterations executed"),
		)
		m.toolCallCounter, _ = meter.Int64Counter(
			"heuris.agent.tool.calls",
			metric.WithDescription("Tool invocations dispatched by the loop"),
		)
		m.toolErrorCounter, _ = meter.Int64Counter(
			"heuris.agent.tool.errors",
			metric.WithDescription("Tool invocations that returned an error payload"),
		)
		m.rateLimitCounter, _ = meter.Int64Counter(
			"heuris.agent.model.rate_limited",
			metric.WithDescription("Model calls retried after a rate-limit signal"),
		)
		m.modelLatencyMs, _ = meter.Float64Histogram(
			"heuris.agent.model.latency_ms",
			metric.WithDescription("Model call latency in milliseconds"),
		)
		runMetrics = m
	})
	return runMetrics
}

// RecordIteration counts one run-loop iteration.
func (m *RunMetrics) RecordIteration(ctx context.Context) {
	if m == nil || m.iterationCounter == nil {
		return
	}
	m.iterationCounter.Add(ctx, 1)
}

// RecordToolCall counts a tool invocation, tagged with skill and tool name.
func (m *RunMetrics) RecordToolCall(ctx context.Context, skill, tool string, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("skill", skill),
		attribute.String("tool", tool),
	)
	if m.toolCallCounter != nil {
		m.toolCallCounter.Add(ctx, 1, attrs)
	}
	if failed && m.toolErrorCounter != nil {
		m.toolErrorCounter.Add(ctx, 1, attrs)
	}
}

// RecordRateLimit counts a rate-limited model call retry.
func (m *RunMetrics) RecordRateLimit(ctx context.Context) {
	if m == nil || m.rateLimitCounter == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1)
}

// RecordModelLatency records one model call's latency.
func (m *RunMetrics) RecordModelLatency(ctx context.Context, ms float64) {
	if m == nil || m.modelLatencyMs == nil {
		return
	}
	m.modelLatencyMs.Record(ctx, ms)
}
