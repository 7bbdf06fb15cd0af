// Package monitor collects process-level runtime metrics for the status
// and metrics endpoints.
package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks overall system performance.
type Metrics struct {
	// Latency histograms
	APILatency    *LatencyHistogram
	BrokerLatency *LatencyHistogram

	// Counters
	apiRequests     uint64
	sessionsStarted uint64
	sessionsStopped uint64
	tradesPlaced    uint64
	tradesSettled   uint64
	errorsCount     uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with a sliding window and lazy
// stats computation.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		APILatency:    NewLatencyHistogram(1000),
		BrokerLatency: NewLatencyHistogram(1000),
		startedAt:     time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts a duration to ms and records it.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputes only when
// samples have changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementAPIRequests increments the handled-request counter.
func (m *Metrics) IncrementAPIRequests() {
	atomic.AddUint64(&m.apiRequests, 1)
}

// IncrementSessionsStarted increments the started-sessions counter.
func (m *Metrics) IncrementSessionsStarted() {
	atomic.AddUint64(&m.sessionsStarted, 1)
}

// IncrementSessionsStopped increments the stopped-sessions counter.
func (m *Metrics) IncrementSessionsStopped() {
	atomic.AddUint64(&m.sessionsStopped, 1)
}

// IncrementTradesPlaced increments the placed-trades counter.
func (m *Metrics) IncrementTradesPlaced() {
	atomic.AddUint64(&m.tradesPlaced, 1)
}

// IncrementTradesSettled increments the settled-trades counter.
func (m *Metrics) IncrementTradesSettled() {
	atomic.AddUint64(&m.tradesSettled, 1)
}

// IncrementErrors increments the error counter.
func (m *Metrics) IncrementErrors() {
	atomic.AddUint64(&m.errorsCount, 1)
}

// Snapshot is a point-in-time metrics view.
type Snapshot struct {
	APILatency      LatencyStats `json:"api_latency"`
	BrokerLatency   LatencyStats `json:"broker_latency"`
	APIRequests     uint64       `json:"api_requests"`
	SessionsStarted uint64       `json:"sessions_started"`
	SessionsStopped uint64       `json:"sessions_stopped"`
	TradesPlaced    uint64       `json:"trades_placed"`
	TradesSettled   uint64       `json:"trades_settled"`
	ErrorsCount     uint64       `json:"errors_count"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	HeapSys         uint64       `json:"heap_sys_bytes"`
	UptimeSeconds   float64      `json:"uptime_seconds"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		APILatency:      m.APILatency.Stats(),
		BrokerLatency:   m.BrokerLatency.Stats(),
		APIRequests:     atomic.LoadUint64(&m.apiRequests),
		SessionsStarted: atomic.LoadUint64(&m.sessionsStarted),
		SessionsStopped: atomic.LoadUint64(&m.sessionsStopped),
		TradesPlaced:    atomic.LoadUint64(&m.tradesPlaced),
		TradesSettled:   atomic.LoadUint64(&m.tradesSettled),
		ErrorsCount:     atomic.LoadUint64(&m.errorsCount),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		HeapSys:         memStats.HeapSys,
		UptimeSeconds:   time.Since(m.startedAt).Seconds(),
		Timestamp:       time.Now(),
	}
}

// Timer measures one operation's duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
