package fiber

import (
	"sync/atomic"
	"time"

	"github.com/evloop/gofiber/internal/interfaces"
)

// LatencyBuckets defines the wait-latency histogram buckets in
// nanoseconds, from 1us to 1s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,       // 1us
	10_000,      // 10us
	100_000,     // 100us
	1_000_000,   // 1ms
	10_000_000,  // 10ms
	100_000_000, // 100ms
	1_000_000_000, // 1s
}

const numLatencyBuckets = 7

// Metrics tracks scheduler-wide operational statistics: how many fibers
// have been spawned and reclaimed, how many coroutine transfers have
// happened, how deep the transfer-later pending queue gets, and how long
// fibers spend waiting before a wait-event resolves.
type Metrics struct {
	Spawns    atomic.Uint64
	Reclaims  atomic.Uint64
	Transfers atomic.Uint64

	ReclaimedFiberTransfers atomic.Uint64 // cumulative, for average age at reclaim

	PendingQueueDepthTotal atomic.Uint64
	PendingQueueDepthCount atomic.Uint64
	MaxPendingQueueDepth   atomic.Uint32

	TotalWaitLatencyNs atomic.Uint64
	WaitCount          atomic.Uint64
	WaitLatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordSpawn(stackSize int) {
	m.Spawns.Add(1)
}

func (m *Metrics) recordReclaim(fiberAgeTransfers uint64) {
	m.Reclaims.Add(1)
	m.ReclaimedFiberTransfers.Add(fiberAgeTransfers)
}

func (m *Metrics) recordTransfer() {
	m.Transfers.Add(1)
}

func (m *Metrics) recordWaitLatencyNs(latencyNs uint64) {
	m.TotalWaitLatencyNs.Add(latencyNs)
	m.WaitCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.WaitLatencyBuckets[i].Add(1)
		}
	}
}

func (m *Metrics) recordPendingQueueDepth(depth int) {
	m.PendingQueueDepthTotal.Add(uint64(depth))
	m.PendingQueueDepthCount.Add(1)
	for {
		current := m.MaxPendingQueueDepth.Load()
		if uint32(depth) <= current {
			break
		}
		if m.MaxPendingQueueDepth.CompareAndSwap(current, uint32(depth)) {
			break
		}
	}
}

// MetricsSnapshot is a point-in-time, non-atomic view of Metrics.
type MetricsSnapshot struct {
	Spawns    uint64
	Reclaims  uint64
	Transfers uint64

	AvgPendingQueueDepth float64
	MaxPendingQueueDepth uint32

	AvgWaitLatencyNs uint64
	UptimeNs         uint64

	WaitLatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot returns a consistent-enough point-in-time copy of m for
// reporting or tests.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Spawns:               m.Spawns.Load(),
		Reclaims:             m.Reclaims.Load(),
		Transfers:            m.Transfers.Load(),
		MaxPendingQueueDepth: m.MaxPendingQueueDepth.Load(),
		UptimeNs:             uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}

	if count := m.PendingQueueDepthCount.Load(); count > 0 {
		snap.AvgPendingQueueDepth = float64(m.PendingQueueDepthTotal.Load()) / float64(count)
	}
	if count := m.WaitCount.Load(); count > 0 {
		snap.AvgWaitLatencyNs = m.TotalWaitLatencyNs.Load() / count
	}
	for i := range snap.WaitLatencyHistogram {
		snap.WaitLatencyHistogram[i] = m.WaitLatencyBuckets[i].Load()
	}
	return snap
}

// Reset zeroes every counter, useful between test cases.
func (m *Metrics) Reset() {
	m.Spawns.Store(0)
	m.Reclaims.Store(0)
	m.Transfers.Store(0)
	m.ReclaimedFiberTransfers.Store(0)
	m.PendingQueueDepthTotal.Store(0)
	m.PendingQueueDepthCount.Store(0)
	m.MaxPendingQueueDepth.Store(0)
	m.TotalWaitLatencyNs.Store(0)
	m.WaitCount.Store(0)
	for i := range m.WaitLatencyBuckets {
		m.WaitLatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}

// NoOpObserver discards every observation; it is the zero-cost default
// for callers that don't want metrics.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSpawn(int)            {}
func (NoOpObserver) ObserveReclaim(uint64)       {}
func (NoOpObserver) ObserveTransfer()            {}
func (NoOpObserver) ObserveWaitLatencyNs(uint64) {}
func (NoOpObserver) ObservePendingQueueDepth(int) {}

// MetricsObserver implements interfaces.Observer on top of Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSpawn(stackSize int)       { o.metrics.recordSpawn(stackSize) }
func (o *MetricsObserver) ObserveReclaim(fiberAgeTransfers uint64) {
	o.metrics.recordReclaim(fiberAgeTransfers)
}
func (o *MetricsObserver) ObserveTransfer()                      { o.metrics.recordTransfer() }
func (o *MetricsObserver) ObserveWaitLatencyNs(latencyNs uint64) { o.metrics.recordWaitLatencyNs(latencyNs) }
func (o *MetricsObserver) ObservePendingQueueDepth(depth int)    { o.metrics.recordPendingQueueDepth(depth) }

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = (*NoOpObserver)(nil)
)
