package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts portal fetches per dataset. It is process-local and feeds
// the sync summary and the status endpoint.
type Metrics struct {
	mu       sync.Mutex
	datasets map[string]*DatasetMetrics

	fetchTotal  atomic.Int64
	fetchFailed atomic.Int64
}

// DatasetMetrics holds counters for one dataset.
type DatasetMetrics struct {
	fetchCount    atomic.Int64
	errorCount    atomic.Int64
	retryCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{datasets: make(map[string]*DatasetMetrics)}
}

// RecordFetch records one completed fetch attempt.
func (m *Metrics) RecordFetch(dataset string, duration time.Duration, err error) {
	dm := m.get(dataset)
	m.fetchTotal.Add(1)
	dm.fetchCount.Add(1)
	dm.totalDuration.Add(duration.Milliseconds())
	if err != nil {
		m.fetchFailed.Add(1)
		dm.errorCount.Add(1)
	}
}

// RecordRetry records a retry after a failed attempt.
func (m *Metrics) RecordRetry(dataset string) {
	m.get(dataset).retryCount.Add(1)
}

func (m *Metrics) get(dataset string) *DatasetMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	dm, ok := m.datasets[dataset]
	if !ok {
		dm = &DatasetMetrics{}
		m.datasets[dataset] = dm
	}
	return dm
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.datasets))
	for name := range m.datasets {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := &MetricsSnapshot{
		FetchTotal:  m.fetchTotal.Load(),
		FetchFailed: m.fetchFailed.Load(),
		Datasets:    make([]DatasetSnapshot, 0, len(names)),
	}
	for _, name := range names {
		dm := m.datasets[name]
		ds := DatasetSnapshot{
			Dataset:    name,
			FetchCount: dm.fetchCount.Load(),
			ErrorCount: dm.errorCount.Load(),
			RetryCount: dm.retryCount.Load(),
		}
		if ds.FetchCount > 0 {
			ds.AverageDurationMs = dm.totalDuration.Load() / ds.FetchCount
		}
		snap.Datasets = append(snap.Datasets, ds)
	}
	return snap
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	FetchTotal  int64             `json:"fetchTotal"`
	FetchFailed int64             `json:"fetchFailed"`
	Datasets    []DatasetSnapshot `json:"datasets"`
}

// DatasetSnapshot represents metrics for one dataset.
type DatasetSnapshot struct {
	Dataset           string `json:"dataset"`
	FetchCount        int64  `json:"fetchCount"`
	ErrorCount        int64  `json:"errorCount"`
	RetryCount        int64  `json:"retryCount"`
	AverageDurationMs int64  `json:"averageDurationMs"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.FetchTotal == 0 {
		return 100.0
	}
	return float64(s.FetchTotal-s.FetchFailed) / float64(s.FetchTotal) * 100.0
}
