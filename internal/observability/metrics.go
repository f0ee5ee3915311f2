package observability

import (
	"sync/atomic"
)

// MetricsCollector provides hooks for reconciliation metrics
type MetricsCollector interface {
	IncReceived()
	IncSkipped()
	IncResent(n int)
	IncResendFailed()
	IncArchived(n int)
	IncArchiveFailed(n int)
	IncCompleted()
	IncCompleteFailed()
}

// InMemoryMetrics is a simple in-memory implementation for testing
type InMemoryMetrics struct {
	Received       atomic.Int64
	Skipped        atomic.Int64
	Resent         atomic.Int64
	ResendFailed   atomic.Int64
	Archived       atomic.Int64
	ArchiveFailed  atomic.Int64
	Completed      atomic.Int64
	CompleteFailed atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncReceived() {
	m.Received.Add(1)
}

func (m *InMemoryMetrics) IncSkipped() {
	m.Skipped.Add(1)
}

func (m *InMemoryMetrics) IncResent(n int) {
	m.Resent.Add(int64(n))
}

func (m *InMemoryMetrics) IncResendFailed() {
	m.ResendFailed.Add(1)
}

func (m *InMemoryMetrics) IncArchived(n int) {
	m.Archived.Add(int64(n))
}

func (m *InMemoryMetrics) IncArchiveFailed(n int) {
	m.ArchiveFailed.Add(int64(n))
}

func (m *InMemoryMetrics) IncCompleted() {
	m.Completed.Add(1)
}

func (m *InMemoryMetrics) IncCompleteFailed() {
	m.CompleteFailed.Add(1)
}

func (m *InMemoryMetrics) GetReceived() int64 {
	return m.Received.Load()
}

func (m *InMemoryMetrics) GetSkipped() int64 {
	return m.Skipped.Load()
}

func (m *InMemoryMetrics) GetResent() int64 {
	return m.Resent.Load()
}

func (m *InMemoryMetrics) GetResendFailed() int64 {
	return m.ResendFailed.Load()
}

func (m *InMemoryMetrics) GetArchived() int64 {
	return m.Archived.Load()
}

func (m *InMemoryMetrics) GetArchiveFailed() int64 {
	return m.ArchiveFailed.Load()
}

func (m *InMemoryMetrics) GetCompleted() int64 {
	return m.Completed.Load()
}

func (m *InMemoryMetrics) GetCompleteFailed() int64 {
	return m.CompleteFailed.Load()
}
