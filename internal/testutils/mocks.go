package testutils

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	lokilog "github.com/GreyZmeem/go-logging-loki"
)

// MockSink collects emitted records for inspection.
type MockSink struct {
	mu        sync.Mutex
	records   []lokilog.Record
	EmitDelay time.Duration
}

func (m *MockSink) Emit(r lokilog.Record) {
	if m.EmitDelay > 0 {
		time.Sleep(m.EmitDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *MockSink) Records() []lokilog.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lokilog.Record, len(m.records))
	copy(out, m.records)
	return out
}

func (m *MockSink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// CreateTempLogStructure lays out a small tree of service log files and
// returns its root.
func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"api/access.log":      "GET /health 200\nGET /v1/items 200\n",
		"api/error.log":       "timeout talking to db\n",
		"worker/worker.log":   "job 42 done\n",
		"db/postgres.log":     "checkpoint complete\n",
		"db/notes.txt":        "not a log file\n",
		"grafana/grafana.log": "grafana starting\n",
		"nested/deep/app.log": "deep log line\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
