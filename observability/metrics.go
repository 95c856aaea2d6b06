package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments tracked by the orchestrator.
type Metrics struct {
	segmentsProcessed metric.Int64Counter
	segmentsFailed    metric.Int64Counter
	segmentDuration   metric.Float64Histogram
	batchDuration     metric.Float64Histogram
	sessionsCompleted metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	segmentsProcessed, err := meter.Int64Counter("segments.processed",
		metric.WithDescription("Total segments processed successfully"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating segments.processed counter: %w", err)
	}

	segmentsFailed, err := meter.Int64Counter("segments.failed",
		metric.WithDescription("Total segments that failed processing, by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating segments.failed counter: %w", err)
	}

	segmentDuration, err := meter.Float64Histogram("segment.duration",
		metric.WithDescription("Duration of single-segment processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating segment.duration histogram: %w", err)
	}

	batchDuration, err := meter.Float64Histogram("batch.duration",
		metric.WithDescription("Duration of batch runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch.duration histogram: %w", err)
	}

	sessionsCompleted, err := meter.Int64Counter("sessions.completed",
		metric.WithDescription("Total sessions that reached a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions.completed counter: %w", err)
	}

	return &Metrics{
		segmentsProcessed: segmentsProcessed,
		segmentsFailed:    segmentsFailed,
		segmentDuration:   segmentDuration,
		batchDuration:     batchDuration,
		sessionsCompleted: sessionsCompleted,
	}, nil
}

// RecordSegmentProcessed records a successful segment and its duration.
func (m *Metrics) RecordSegmentProcessed(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.segmentsProcessed.Add(ctx, 1)
	m.segmentDuration.Record(ctx, d.Seconds())
}

// RecordSegmentFailed records a failed segment tagged with the error code.
func (m *Metrics) RecordSegmentFailed(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.segmentsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordBatch records a completed batch run tagged with its final status.
func (m *Metrics) RecordBatch(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordSessionStatus records a session reaching a terminal status.
func (m *Metrics) RecordSessionStatus(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.sessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
