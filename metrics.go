package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics counts what flows through the pipeline. A nil receiver is
// a no-op so components can be built without metrics in tests.
type pipelineMetrics struct {
	eventsParsed metric.Int64Counter
	admitted     metric.Int64Counter
	rejected     metric.Int64Counter
	delivered    metric.Int64Counter
	merged       metric.Int64Counter
}

func newPipelineMetrics(meter metric.Meter) (*pipelineMetrics, error) {
	var m pipelineMetrics
	var err error

	if m.eventsParsed, err = meter.Int64Counter("vrc.events.parsed",
		metric.WithDescription("Domain events extracted from the log")); err != nil {
		return nil, fmt.Errorf("events counter: %w", err)
	}
	if m.admitted, err = meter.Int64Counter("vrc.notifications.admitted",
		metric.WithDescription("Notifications admitted into the dispatch queue")); err != nil {
		return nil, fmt.Errorf("admitted counter: %w", err)
	}
	if m.rejected, err = meter.Int64Counter("vrc.notifications.rejected",
		metric.WithDescription("Events refused by the admission policy")); err != nil {
		return nil, fmt.Errorf("rejected counter: %w", err)
	}
	if m.delivered, err = meter.Int64Counter("vrc.notifications.delivered",
		metric.WithDescription("Notifications handed to every channel")); err != nil {
		return nil, fmt.Errorf("delivered counter: %w", err)
	}
	if m.merged, err = meter.Int64Counter("vrc.notifications.merged",
		metric.WithDescription("Queued join/leave notifications folded into a group")); err != nil {
		return nil, fmt.Errorf("merged counter: %w", err)
	}
	return &m, nil
}

func kindAttr(kind EventKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", string(kind)))
}

func (m *pipelineMetrics) eventParsed(kind EventKind) {
	if m == nil {
		return
	}
	m.eventsParsed.Add(context.Background(), 1, kindAttr(kind))
}

func (m *pipelineMetrics) notificationAdmitted(kind EventKind) {
	if m == nil {
		return
	}
	m.admitted.Add(context.Background(), 1, kindAttr(kind))
}

func (m *pipelineMetrics) notificationRejected(kind EventKind, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("reason", reason),
	))
}

func (m *pipelineMetrics) notificationDelivered(kind EventKind) {
	if m == nil {
		return
	}
	m.delivered.Add(context.Background(), 1, kindAttr(kind))
}

func (m *pipelineMetrics) notificationsMerged(kind EventKind, n int) {
	if m == nil {
		return
	}
	m.merged.Add(context.Background(), int64(n), kindAttr(kind))
}
