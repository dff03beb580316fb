// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Authentication metrics
	IncAuthAttempt(kind string)   // kind: "master", "api_key", "access_token", "malformed"
	IncAuthFailure(reason string) // reason: error code of the rejection
	IncAuthCacheHit()
	IncAuthCacheMiss()
	ObserveAuthDuration(duration time.Duration)

	// Session lifecycle metrics
	IncSessionIssued()
	IncSessionRotated()
	IncSessionRevoked()
	IncRefreshReuseDetected()

	// Provisioning metrics
	IncUserProvisioned()
	IncProvisioningConflict()

	// Usage ledger metrics
	IncUsageEventPublished(status string) // status: "success" or "dropped"
	IncUsageEventProcessed(status string) // status: "success", "failed", "skipped"
	ObserveUsageBatchSize(size int)
	ObserveUsageBatchDuration(duration time.Duration)
	SetUsageQueueDepth(depth int64)
	ObserveUsageIngestLag(lag time.Duration)

	// Budget metrics
	IncBudgetRejection()
	IncBudgetReset()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
