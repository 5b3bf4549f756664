// Package tailer follows log files on disk and feeds each new line as a
// record into a lokilog handler.
package tailer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hpcloud/tail"

	lokilog "github.com/GreyZmeem/go-logging-loki"
)

// RecordSink receives the records produced by the shipper. It is
// satisfied by *lokilog.QueueHandler and *lokilog.Handler.
type RecordSink interface {
	Emit(lokilog.Record)
}

type Config struct {
	// LogRoot is scanned recursively for *.log files.
	LogRoot string
	// ScanInterval is how often LogRoot is rescanned for new files.
	ScanInterval time.Duration
	// Workers is the number of goroutines tailing files.
	Workers int
	// FileQueueSize bounds the queue of discovered files waiting for a
	// worker. Discoveries that find the queue full are retried on the
	// next scan.
	FileQueueSize int
	// NodeName is attached to every record as the "node" tag.
	NodeName string
	// IdleTimeout stops tailing a file after this period without new
	// lines; the file is picked up again on a later scan. Zero keeps
	// tails open forever.
	IdleTimeout time.Duration
}

// Shipper discovers log files under a root directory, tails them and
// emits one record per line into the sink.
type Shipper struct {
	config  Config
	sink    RecordSink
	log     logr.Logger
	metrics *Metrics

	fileQueue chan string

	mu   sync.Mutex
	seen map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	scannerWg sync.WaitGroup
	workersWg sync.WaitGroup
}

func New(ctx context.Context, config Config, sink RecordSink, log logr.Logger) *Shipper {
	sCtx, cancel := context.WithCancel(ctx)
	return &Shipper{
		config:    config,
		sink:      sink,
		log:       log,
		metrics:   NewMetrics(config.FileQueueSize),
		fileQueue: make(chan string, config.FileQueueSize),
		seen:      make(map[string]struct{}),
		ctx:       sCtx,
		cancel:    cancel,
	}
}

// Metrics exposes the shipper's counters.
func (s *Shipper) Metrics() *Metrics {
	return s.metrics
}

func (s *Shipper) Start() {
	s.log.Info("starting shipper",
		"root", s.config.LogRoot,
		"workers", s.config.Workers,
		"queue_size", s.config.FileQueueSize)

	for i := 0; i < s.config.Workers; i++ {
		s.workersWg.Add(1)
		go s.worker(i)
	}

	s.scannerWg.Add(1)
	go s.scanner()
}

// Stop halts discovery, waits for all tails to wind down and returns.
// It does not flush the sink; close the handler afterwards.
func (s *Shipper) Stop() {
	s.cancel()
	s.scannerWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	s.log.Info("shipper stopped")
}

func (s *Shipper) worker(id int) {
	defer s.workersWg.Done()

	for {
		select {
		case path, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecQueuedFiles()
			s.tailFile(path)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) tailFile(path string) {
	defer s.forget(path)

	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.log.Error(err, "failed to tail file", "path", path)
		s.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()

	s.metrics.IncFilesActive()
	defer s.metrics.DecFilesActive()

	tags := s.fileTags(path)
	logger := strings.TrimSuffix(filepath.Base(path), ".log")

	checkTicker := time.NewTicker(time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line := <-t.Lines:
			if line == nil {
				continue
			}
			if line.Err != nil {
				s.log.Error(line.Err, "error reading line", "path", path)
				continue
			}

			s.sink.Emit(lokilog.Record{
				Time:    time.Now(),
				Level:   lokilog.Info,
				Logger:  logger,
				Message: line.Text,
				Tags:    tags,
			})
			s.metrics.IncLinesShipped()
			lastActivity = time.Now()

		case <-checkTicker.C:
			// Wake up from the blocking line read to check the context
			// and the idle timeout.
			if s.config.IdleTimeout > 0 && time.Since(lastActivity) > s.config.IdleTimeout {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) scanner() {
	defer s.scannerWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Shipper) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		s.log.Error(err, "failed to scan log root", "root", s.config.LogRoot)
		return
	}

	for _, file := range files {
		if !s.markSeen(file) {
			continue
		}
		select {
		case s.fileQueue <- file:
			s.metrics.IncFilesDiscovered()
			s.metrics.IncQueuedFiles()
		case <-s.ctx.Done():
			return
		default:
			// Retried on the next scan.
			s.forget(file)
			s.log.V(1).Info("file queue full, deferring file", "path", file)
		}
	}
}

// markSeen claims a file for tailing; it reports false when the file is
// already queued or being tailed.
func (s *Shipper) markSeen(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[path]; ok {
		return false
	}
	s.seen[path] = struct{}{}
	return true
}

func (s *Shipper) forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, path)
}

func (s *Shipper) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.log.V(1).Info("skipping unreadable path", "path", path, "error", err.Error())
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

func (s *Shipper) fileTags(path string) map[string]any {
	return map[string]any{
		"node": s.config.NodeName,
		"file": filepath.Base(path),
		"dir":  filepath.Base(filepath.Dir(path)),
	}
}
