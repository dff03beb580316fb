package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncAuthAttempt is a no-op.
func (n *NoopRecorder) IncAuthAttempt(kind string) {}

// IncAuthFailure is a no-op.
func (n *NoopRecorder) IncAuthFailure(reason string) {}

// IncAuthCacheHit is a no-op.
func (n *NoopRecorder) IncAuthCacheHit() {}

// IncAuthCacheMiss is a no-op.
func (n *NoopRecorder) IncAuthCacheMiss() {}

// ObserveAuthDuration is a no-op.
func (n *NoopRecorder) ObserveAuthDuration(duration time.Duration) {}

// IncSessionIssued is a no-op.
func (n *NoopRecorder) IncSessionIssued() {}

// IncSessionRotated is a no-op.
func (n *NoopRecorder) IncSessionRotated() {}

// IncSessionRevoked is a no-op.
func (n *NoopRecorder) IncSessionRevoked() {}

// IncRefreshReuseDetected is a no-op.
func (n *NoopRecorder) IncRefreshReuseDetected() {}

// IncUserProvisioned is a no-op.
func (n *NoopRecorder) IncUserProvisioned() {}

// IncProvisioningConflict is a no-op.
func (n *NoopRecorder) IncProvisioningConflict() {}

// IncUsageEventPublished is a no-op.
func (n *NoopRecorder) IncUsageEventPublished(status string) {}

// IncUsageEventProcessed is a no-op.
func (n *NoopRecorder) IncUsageEventProcessed(status string) {}

// ObserveUsageBatchSize is a no-op.
func (n *NoopRecorder) ObserveUsageBatchSize(size int) {}

// ObserveUsageBatchDuration is a no-op.
func (n *NoopRecorder) ObserveUsageBatchDuration(duration time.Duration) {}

// SetUsageQueueDepth is a no-op.
func (n *NoopRecorder) SetUsageQueueDepth(depth int64) {}

// ObserveUsageIngestLag is a no-op.
func (n *NoopRecorder) ObserveUsageIngestLag(lag time.Duration) {}

// IncBudgetRejection is a no-op.
func (n *NoopRecorder) IncBudgetRejection() {}

// IncBudgetReset is a no-op.
func (n *NoopRecorder) IncBudgetReset() {}
