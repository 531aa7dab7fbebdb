package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PushMetrics holds the push client's instruments. It implements push.Metrics.
type PushMetrics struct {
	networkCalls     metric.Int64Counter
	interestsChanges metric.Int64Counter
	syncSkipped      metric.Int64Counter
	queuePending     metric.Int64UpDownCounter
}

// NewPushMetrics creates the push instruments on meter.
func NewPushMetrics(meter metric.Meter) (*PushMetrics, error) {
	networkCalls, err := meter.Int64Counter(
		"push.network.calls",
		metric.WithDescription("Vendor API calls by operation and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create push.network.calls: %w", err)
	}

	interestsChanges, err := meter.Int64Counter(
		"push.interests.changes",
		metric.WithDescription("Local interest set changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create push.interests.changes: %w", err)
	}

	syncSkipped, err := meter.Int64Counter(
		"push.sync.skipped",
		metric.WithDescription("Reconciliation passes that found the vendor up to date"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create push.sync.skipped: %w", err)
	}

	queuePending, err := meter.Int64UpDownCounter(
		"push.queue.pending",
		metric.WithDescription("Tasks waiting in the client queues"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create push.queue.pending: %w", err)
	}

	return &PushMetrics{
		networkCalls:     networkCalls,
		interestsChanges: interestsChanges,
		syncSkipped:      syncSkipped,
		queuePending:     queuePending,
	}, nil
}

// NetworkCall records one vendor call.
func (m *PushMetrics) NetworkCall(ctx context.Context, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.networkCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// InterestsChanged records a local interest set change.
func (m *PushMetrics) InterestsChanged(ctx context.Context) {
	m.interestsChanges.Add(ctx, 1)
}

// SyncSkipped records a reconciliation pass with nothing to send.
func (m *PushMetrics) SyncSkipped(ctx context.Context) {
	m.syncSkipped.Add(ctx, 1)
}

// QueueDepth moves the pending gauge of queue by delta.
func (m *PushMetrics) QueueDepth(ctx context.Context, queue string, delta int64) {
	m.queuePending.Add(ctx, delta, metric.WithAttributes(attribute.String("queue", queue)))
}
