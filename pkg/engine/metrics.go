package engine

import (
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of engine activity across runs.
type Metrics struct {
	NodesSucceeded  int64
	NodesFailed     int64
	NodesSkipped    int64
	RunsCompleted   int64
	ExecutionTimeNs int64
}

// MetricsCollector records node and run outcomes.
type MetricsCollector interface {
	RecordNodeSucceeded(durationNs int64)
	RecordNodeFailed()
	RecordNodeSkipped()
	RecordRunCompleted()
	GetMetrics() Metrics
}

// DefaultMetricsCollector is a thread-safe implementation of MetricsCollector.
type DefaultMetricsCollector struct {
	succeeded     atomic.Int64
	failed        atomic.Int64
	skipped       atomic.Int64
	runs          atomic.Int64
	executionTime atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{}
}

// RecordNodeSucceeded records a successfully executed node.
func (m *DefaultMetricsCollector) RecordNodeSucceeded(durationNs int64) {
	m.succeeded.Add(1)
	m.executionTime.Add(durationNs)
}

// RecordNodeFailed records a failed node.
func (m *DefaultMetricsCollector) RecordNodeFailed() {
	m.failed.Add(1)
}

// RecordNodeSkipped records a skipped node.
func (m *DefaultMetricsCollector) RecordNodeSkipped() {
	m.skipped.Add(1)
}

// RecordRunCompleted records a finished run.
func (m *DefaultMetricsCollector) RecordRunCompleted() {
	m.runs.Add(1)
}

// GetMetrics returns the current metrics.
func (m *DefaultMetricsCollector) GetMetrics() Metrics {
	return Metrics{
		NodesSucceeded:  m.succeeded.Load(),
		NodesFailed:     m.failed.Load(),
		NodesSkipped:    m.skipped.Load(),
		RunsCompleted:   m.runs.Load(),
		ExecutionTimeNs: m.executionTime.Load(),
	}
}

// Reset resets all metrics.
func (m *DefaultMetricsCollector) Reset() {
	m.succeeded.Store(0)
	m.failed.Store(0)
	m.skipped.Store(0)
	m.runs.Store(0)
	m.executionTime.Store(0)
}

// AverageNodeTime returns the average execution time per succeeded node.
func (m *DefaultMetricsCollector) AverageNodeTime() time.Duration {
	succeeded := m.succeeded.Load()
	if succeeded == 0 {
		return 0
	}
	return time.Duration(m.executionTime.Load() / succeeded)
}

var _ MetricsCollector = (*DefaultMetricsCollector)(nil)

// NoOpMetricsCollector is a metrics collector that does nothing.
type NoOpMetricsCollector struct{}

func (m *NoOpMetricsCollector) RecordNodeSucceeded(durationNs int64) {}
func (m *NoOpMetricsCollector) RecordNodeFailed()                    {}
func (m *NoOpMetricsCollector) RecordNodeSkipped()                   {}
func (m *NoOpMetricsCollector) RecordRunCompleted()                  {}
func (m *NoOpMetricsCollector) GetMetrics() Metrics                  { return Metrics{} }

var _ MetricsCollector = (*NoOpMetricsCollector)(nil)
