package lokilog

import "time"

// batchBuffer accumulates formatted records until either capacity or
// the flush interval is reached. It is owned by a single worker
// goroutine and needs no internal locking.
type batchBuffer struct {
	capacity  int
	interval  time.Duration
	flushFn   func([]entry)
	entries   []entry
	lastFlush time.Time
}

func newBatchBuffer(capacity int, interval time.Duration, flushFn func([]entry)) *batchBuffer {
	return &batchBuffer{
		capacity:  capacity,
		interval:  interval,
		flushFn:   flushFn,
		entries:   make([]entry, 0, capacity),
		lastFlush: time.Now(),
	}
}

func (b *batchBuffer) append(en entry) {
	b.entries = append(b.entries, en)
	if len(b.entries) >= b.capacity || time.Since(b.lastFlush) >= b.interval {
		b.flush()
	}
}

// flushIfStale flushes a non-empty batch whose age reached the interval.
func (b *batchBuffer) flushIfStale() {
	if len(b.entries) > 0 && time.Since(b.lastFlush) >= b.interval {
		b.flush()
	}
}

// flush hands the accumulated batch to the delivery path and clears it
// whether or not delivery succeeds; failed batches are not retried.
// The flush timer resets either way.
func (b *batchBuffer) flush() {
	if len(b.entries) == 0 {
		b.lastFlush = time.Now()
		return
	}
	batch := make([]entry, len(b.entries))
	copy(batch, b.entries)
	b.entries = b.entries[:0]

	b.flushFn(batch)
	b.lastFlush = time.Now()
}
