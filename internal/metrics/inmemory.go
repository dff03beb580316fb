package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AuthAttempts         map[string]uint64
	AuthFailures         map[string]uint64
	AuthCacheHits        uint64
	AuthCacheMisses      uint64
	AuthDurationCount    uint64
	AuthDurationTotalNs  int64
	SessionsIssued       uint64
	SessionsRotated      uint64
	SessionsRevoked      uint64
	RefreshReuseDetected uint64
	UsersProvisioned     uint64
	ProvisioningConflict uint64
	UsagePublished       map[string]uint64
	UsageProcessed       map[string]uint64
	UsageBatchCount      uint64
	UsageBatchSizeTotal  uint64
	UsageQueueDepth      int64
	BudgetRejections     uint64
	BudgetResets         uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu        sync.Mutex
	attempts  map[string]uint64
	failures  map[string]uint64
	published map[string]uint64
	processed map[string]uint64

	authCacheHits        uint64
	authCacheMisses      uint64
	authDurationCount    uint64
	authDurationTotalNs  int64
	sessionsIssued       uint64
	sessionsRotated      uint64
	sessionsRevoked      uint64
	refreshReuseDetected uint64
	usersProvisioned     uint64
	provisioningConflict uint64
	usageBatchCount      uint64
	usageBatchSizeTotal  uint64
	usageQueueDepth      int64
	budgetRejections     uint64
	budgetResets         uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		attempts:  make(map[string]uint64),
		failures:  make(map[string]uint64),
		published: make(map[string]uint64),
		processed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		AuthAttempts:         copyCounters(m.attempts),
		AuthFailures:         copyCounters(m.failures),
		AuthCacheHits:        atomic.LoadUint64(&m.authCacheHits),
		AuthCacheMisses:      atomic.LoadUint64(&m.authCacheMisses),
		AuthDurationCount:    atomic.LoadUint64(&m.authDurationCount),
		AuthDurationTotalNs:  atomic.LoadInt64(&m.authDurationTotalNs),
		SessionsIssued:       atomic.LoadUint64(&m.sessionsIssued),
		SessionsRotated:      atomic.LoadUint64(&m.sessionsRotated),
		SessionsRevoked:      atomic.LoadUint64(&m.sessionsRevoked),
		RefreshReuseDetected: atomic.LoadUint64(&m.refreshReuseDetected),
		UsersProvisioned:     atomic.LoadUint64(&m.usersProvisioned),
		ProvisioningConflict: atomic.LoadUint64(&m.provisioningConflict),
		UsagePublished:       copyCounters(m.published),
		UsageProcessed:       copyCounters(m.processed),
		UsageBatchCount:      atomic.LoadUint64(&m.usageBatchCount),
		UsageBatchSizeTotal:  atomic.LoadUint64(&m.usageBatchSizeTotal),
		UsageQueueDepth:      atomic.LoadInt64(&m.usageQueueDepth),
		BudgetRejections:     atomic.LoadUint64(&m.budgetRejections),
		BudgetResets:         atomic.LoadUint64(&m.budgetResets),
	}
}

func copyCounters(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// IncAuthAttempt increments the attempt counter for a credential kind.
func (m *InMemoryRecorder) IncAuthAttempt(kind string) {
	m.mu.Lock()
	m.attempts[kind]++
	m.mu.Unlock()
}

// IncAuthFailure increments the failure counter for a rejection reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.mu.Lock()
	m.failures[reason]++
	m.mu.Unlock()
}

// IncAuthCacheHit increments the principal cache hit counter.
func (m *InMemoryRecorder) IncAuthCacheHit() {
	atomic.AddUint64(&m.authCacheHits, 1)
}

// IncAuthCacheMiss increments the principal cache miss counter.
func (m *InMemoryRecorder) IncAuthCacheMiss() {
	atomic.AddUint64(&m.authCacheMisses, 1)
}

// ObserveAuthDuration records credential resolution duration.
func (m *InMemoryRecorder) ObserveAuthDuration(duration time.Duration) {
	atomic.AddUint64(&m.authDurationCount, 1)
	atomic.AddInt64(&m.authDurationTotalNs, duration.Nanoseconds())
}

// IncSessionIssued increments the sessions issued counter.
func (m *InMemoryRecorder) IncSessionIssued() {
	atomic.AddUint64(&m.sessionsIssued, 1)
}

// IncSessionRotated increments the sessions rotated counter.
func (m *InMemoryRecorder) IncSessionRotated() {
	atomic.AddUint64(&m.sessionsRotated, 1)
}

// IncSessionRevoked increments the sessions revoked counter.
func (m *InMemoryRecorder) IncSessionRevoked() {
	atomic.AddUint64(&m.sessionsRevoked, 1)
}

// IncRefreshReuseDetected increments the refresh reuse counter.
func (m *InMemoryRecorder) IncRefreshReuseDetected() {
	atomic.AddUint64(&m.refreshReuseDetected, 1)
}

// IncUserProvisioned increments the users provisioned counter.
func (m *InMemoryRecorder) IncUserProvisioned() {
	atomic.AddUint64(&m.usersProvisioned, 1)
}

// IncProvisioningConflict increments the provisioning conflict counter.
func (m *InMemoryRecorder) IncProvisioningConflict() {
	atomic.AddUint64(&m.provisioningConflict, 1)
}

// IncUsageEventPublished increments the publish counter for a status.
func (m *InMemoryRecorder) IncUsageEventPublished(status string) {
	m.mu.Lock()
	m.published[status]++
	m.mu.Unlock()
}

// IncUsageEventProcessed increments the processed counter for a status.
func (m *InMemoryRecorder) IncUsageEventProcessed(status string) {
	m.mu.Lock()
	m.processed[status]++
	m.mu.Unlock()
}

// ObserveUsageBatchSize records the size of a processed batch.
func (m *InMemoryRecorder) ObserveUsageBatchSize(size int) {
	atomic.AddUint64(&m.usageBatchCount, 1)
	atomic.AddUint64(&m.usageBatchSizeTotal, uint64(size))
}

// ObserveUsageBatchDuration is recorded only as a count in memory.
func (m *InMemoryRecorder) ObserveUsageBatchDuration(duration time.Duration) {}

// SetUsageQueueDepth records the current stream backlog.
func (m *InMemoryRecorder) SetUsageQueueDepth(depth int64) {
	atomic.StoreInt64(&m.usageQueueDepth, depth)
}

// ObserveUsageIngestLag is recorded only as a count in memory.
func (m *InMemoryRecorder) ObserveUsageIngestLag(lag time.Duration) {}

// IncBudgetRejection increments the budget rejection counter.
func (m *InMemoryRecorder) IncBudgetRejection() {
	atomic.AddUint64(&m.budgetRejections, 1)
}

// IncBudgetReset increments the budget reset counter.
func (m *InMemoryRecorder) IncBudgetReset() {
	atomic.AddUint64(&m.budgetResets, 1)
}
