package push

import "context"

// Metrics records client activity. telemetry.PushMetrics implements it.
type Metrics interface {
	// NetworkCall records one vendor call and its outcome.
	NetworkCall(ctx context.Context, op string, err error)

	// InterestsChanged records a local interest set change.
	InterestsChanged(ctx context.Context)

	// SyncSkipped records a reconciliation pass that needed no vendor call.
	SyncSkipped(ctx context.Context)

	// QueueDepth adjusts the depth gauge of the named queue.
	QueueDepth(ctx context.Context, queue string, delta int64)
}

type nopMetrics struct{}

func (nopMetrics) NetworkCall(context.Context, string, error) {}
func (nopMetrics) InterestsChanged(context.Context) {}
func (nopMetrics) SyncSkipped(context.Context) {}
func (nopMetrics) QueueDepth(context.Context, string, int64) {}
