package tailer

import "sync"

// Metrics tracks shipper activity. All methods are safe for concurrent
// use.
type Metrics struct {
	FilesDiscovered   int
	FilesActive       int
	FilesFailed       int
	LinesShipped      int
	QueuedFiles       int
	FileQueueCapacity int
	mu                sync.RWMutex
}

func NewMetrics(queueCapacity int) *Metrics {
	return &Metrics{FileQueueCapacity: queueCapacity}
}

func (m *Metrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *Metrics) IncFilesActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesActive++
}

func (m *Metrics) DecFilesActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesActive--
}

func (m *Metrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *Metrics) IncLinesShipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinesShipped++
}

func (m *Metrics) IncQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles++
}

func (m *Metrics) DecQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles--
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		FilesDiscovered:   m.FilesDiscovered,
		FilesActive:       m.FilesActive,
		FilesFailed:       m.FilesFailed,
		LinesShipped:      m.LinesShipped,
		QueuedFiles:       m.QueuedFiles,
		FileQueueCapacity: m.FileQueueCapacity,
	}
}

// QueueUsage reports the fill ratio of the file queue.
func (m *Metrics) QueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FileQueueCapacity == 0 {
		return 0
	}
	return float64(m.QueuedFiles) / float64(m.FileQueueCapacity)
}
