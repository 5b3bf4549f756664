package lokilog

import (
	"sync/atomic"
	"time"
)

// QueueHandler decouples producers from delivery. Emit formats the line
// and enqueues it; one worker goroutine drains the queue into a batch
// buffer and drives the emitter, so producers never touch the network.
type QueueHandler struct {
	handler *Handler
	queue   chan entry
	flushCh chan chan struct{}
	quit    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Uint64
	batch   *batchBuffer
}

// NewQueueHandler builds a queued handler and starts its worker.
func NewQueueHandler(cfg Config) (*QueueHandler, error) {
	h, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	q := &QueueHandler{
		handler: h,
		queue:   make(chan entry, queueSize),
		flushCh: make(chan chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		batch:   newBatchBuffer(batchSize, flushInterval, h.emitBatch),
	}
	go q.worker()
	return q, nil
}

// Emit formats the record and hands it to the background worker. It
// never blocks on network state: when the queue is full the record is
// dropped (drop-newest) and counted.
func (q *QueueHandler) Emit(r Record) {
	if q.closed.Load() {
		return
	}
	select {
	case q.queue <- entry{record: r, line: q.handler.formatter(r)}:
	default:
		dropped := q.dropped.Add(1)
		q.handler.log.V(1).Info("queue full, dropping record", "dropped", dropped)
	}
}

// Dropped reports how many records were discarded on queue overflow.
func (q *QueueHandler) Dropped() uint64 {
	return q.dropped.Load()
}

// Flush forces the worker to flush the current batch, independent of
// the size and age thresholds, and waits until it has been handed to
// the emitter.
func (q *QueueHandler) Flush() {
	ack := make(chan struct{})
	select {
	case q.flushCh <- ack:
		<-ack
	case <-q.done:
	}
}

// Close stops intake, drains the queue, forces a final flush, waits for
// the worker to exit and releases the network session. No in-flight
// work is abandoned mid-request.
func (q *QueueHandler) Close() error {
	if !q.closed.Swap(true) {
		close(q.quit)
	}
	<-q.done
	return q.handler.Close()
}

func (q *QueueHandler) worker() {
	defer close(q.done)

	ticker := time.NewTicker(q.batch.interval)
	defer ticker.Stop()

	for {
		select {
		case en := <-q.queue:
			q.batch.append(en)
		case <-ticker.C:
			q.batch.flushIfStale()
		case ack := <-q.flushCh:
			q.batch.flush()
			close(ack)
		case <-q.quit:
			q.drain()
			q.batch.flush()
			return
		}
	}
}

// drain empties whatever is left in the queue into the batch buffer.
func (q *QueueHandler) drain() {
	for {
		select {
		case en := <-q.queue:
			q.batch.append(en)
		default:
			return
		}
	}
}
