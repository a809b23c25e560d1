package lpn

import (
	"runtime"
	"strings"
	"sync"
	"time"
)

// AppMetrics receives request, lookup and upload observations from the HTTP
// layer. Implementations must be safe for concurrent use.
type AppMetrics interface {
	RecordRequest(method, path string, status int, latencyMS int64)
	RecordLookup(shard string, latencyMS int64, found bool, err error)
	RecordUpload(latencyMS int64, files int, parsedRows int, uniqueNew int, err error)
	Snapshot() MetricsSnapshot
}

// Timing is the call counter shared by every stats bucket.
type Timing struct {
	Count        int64 `json:"count"`
	ErrorCount   int64 `json:"errorCount"`
	LatencySumMS int64 `json:"latencySumMs"`
	LatencyMinMS int64 `json:"latencyMinMs"`
	LatencyMaxMS int64 `json:"latencyMaxMs"`
}

func (t *Timing) observe(latencyMS int64, failed bool) {
	latencyMS = max(latencyMS, 0)
	t.Count++
	if failed {
		t.ErrorCount++
	}
	t.LatencySumMS += latencyMS
	if t.Count == 1 || latencyMS < t.LatencyMinMS {
		t.LatencyMinMS = latencyMS
	}
	t.LatencyMaxMS = max(t.LatencyMaxMS, latencyMS)
}

type RouteStats struct {
	Timing
}

type LookupStats struct {
	Timing
	FoundCount int64 `json:"foundCount"`
}

type UploadStats struct {
	Timing
	TotalFiles     int64 `json:"totalFiles"`
	TotalRows      int64 `json:"totalRows"`
	TotalUniqueNew int64 `json:"totalUniqueNew"`
}

type RecentRequest struct {
	At        time.Time `json:"at"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latencyMs"`
}

type RuntimeStats struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	HeapObjects    uint64 `json:"heapObjects"`
	NumGC          uint32 `json:"numGc"`
}

// MetricsSnapshot is the payload served on /metrics/app.
type MetricsSnapshot struct {
	StartedAt      time.Time              `json:"startedAt"`
	UptimeSeconds  int64                  `json:"uptimeSeconds"`
	RouteStats     map[string]RouteStats  `json:"routes"`
	LookupStats    map[string]LookupStats `json:"lookups"`
	UploadStats    UploadStats            `json:"uploads"`
	RecentRequests []RecentRequest        `json:"recent"`
	Runtime        RuntimeStats           `json:"runtime"`
}

// NoopAppMetrics discards everything.
type NoopAppMetrics struct{}

func (NoopAppMetrics) RecordRequest(string, string, int, int64) {}
func (NoopAppMetrics) RecordLookup(string, int64, bool, error) {}
func (NoopAppMetrics) RecordUpload(int64, int, int, int, error) {}
func (NoopAppMetrics) Snapshot() MetricsSnapshot { return MetricsSnapshot{} }

const appMetricsRecentCapacity = 200

// InMemAppMetrics keeps process-local counters and the last
// appMetricsRecentCapacity requests.
type InMemAppMetrics struct {
	mu sync.Mutex

	started time.Time
	routes  map[string]RouteStats
	lookups map[string]LookupStats
	uploads UploadStats

	// recent is a fixed-size ring; head is the slot written next.
	recent []RecentRequest
	head   int
	filled bool
}

func NewInMemAppMetrics() *InMemAppMetrics {
	return &InMemAppMetrics{
		started: time.Now().UTC(),
		routes:  map[string]RouteStats{},
		lookups: map[string]LookupStats{},
		recent:  make([]RecentRequest, appMetricsRecentCapacity),
	}
}

// RecordRequest buckets by "METHOD path". Blank methods are recorded as
// UNKNOWN and blank paths as "/".
func (m *InMemAppMetrics) RecordRequest(method, path string, status int, latencyMS int64) {
	if m == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	if path = strings.TrimSpace(path); path == "" {
		path = "/"
	}
	route := method + " " + path

	m.mu.Lock()
	defer m.mu.Unlock()

	rs := m.routes[route]
	rs.observe(latencyMS, status >= 400)
	m.routes[route] = rs

	m.recent[m.head] = RecentRequest{
		At:        time.Now().UTC(),
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMS: max(latencyMS, 0),
	}
	m.head++
	if m.head == len(m.recent) {
		m.head = 0
		m.filled = true
	}
}

// RecordLookup buckets by shard key; lookups rejected before a shard was
// derived land under "none".
func (m *InMemAppMetrics) RecordLookup(shard string, latencyMS int64, found bool, err error) {
	if m == nil {
		return
	}
	if shard = strings.TrimSpace(shard); shard == "" {
		shard = "none"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ls := m.lookups[shard]
	ls.observe(latencyMS, err != nil)
	if found {
		ls.FoundCount++
	}
	m.lookups[shard] = ls
}

func (m *InMemAppMetrics) RecordUpload(latencyMS int64, files int, parsedRows int, uniqueNew int, err error) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploads.observe(latencyMS, err != nil)
	m.uploads.TotalFiles += int64(max(files, 0))
	m.uploads.TotalRows += int64(max(parsedRows, 0))
	m.uploads.TotalUniqueNew += int64(max(uniqueNew, 0))
}

func (m *InMemAppMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}

	m.mu.Lock()
	snap := MetricsSnapshot{
		StartedAt:      m.started,
		UptimeSeconds:  int64(time.Since(m.started) / time.Second),
		RouteStats:     cloneStats(m.routes),
		LookupStats:    cloneStats(m.lookups),
		UploadStats:    m.uploads,
		RecentRequests: m.recentOrdered(),
	}
	m.mu.Unlock()

	// ReadMemStats stops the world, so it runs without holding m.mu.
	snap.Runtime = readRuntimeStats()
	return snap
}

// recentOrdered returns the ring oldest first. Caller holds m.mu.
func (m *InMemAppMetrics) recentOrdered() []RecentRequest {
	if !m.filled {
		return append([]RecentRequest{}, m.recent[:m.head]...)
	}
	out := make([]RecentRequest, 0, len(m.recent))
	out = append(out, m.recent[m.head:]...)
	return append(out, m.recent[:m.head]...)
}

func readRuntimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapObjects:    ms.HeapObjects,
		NumGC:          ms.NumGC,
	}
}

func cloneStats[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
