// Package telemetry provides OpenTelemetry instrumentation for sync drains.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/jask/offlinesync/sync"

// Item outcomes recorded by RecordItem.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetrying  = "retrying"
	OutcomeDropped   = "dropped"
)

// SyncMetrics holds the OpenTelemetry instruments for queue drains
type SyncMetrics struct {
	drainDuration metric.Float64Histogram
	items         metric.Int64Counter
	queueLength   metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	drainDuration, err := meter.Float64Histogram(
		"offlinesync_drain_duration_seconds",
		metric.WithDescription("Duration of sync queue drains in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	items, err := meter.Int64Counter(
		"offlinesync_items_total",
		metric.WithDescription("Replayed queue items by outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	queueLength, err := meter.Int64Gauge(
		"offlinesync_queue_length",
		metric.WithDescription("Items left in the sync queue after a drain"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		drainDuration: drainDuration,
		items:         items,
		queueLength:   queueLength,
	}, nil
}

// RecordDrain records the duration of one drain
func (m *SyncMetrics) RecordDrain(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.drainDuration == nil {
		return
	}
	m.drainDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordItem counts one replayed item
func (m *SyncMetrics) RecordItem(ctx context.Context, outcome, priority string) {
	if m == nil || m.items == nil {
		return
	}
	m.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("priority", priority),
	))
}

// RecordQueueLength records how many items remain queued
func (m *SyncMetrics) RecordQueueLength(ctx context.Context, n int) {
	if m == nil || m.queueLength == nil {
		return
	}
	m.queueLength.Record(ctx, int64(n))
}
