package lokilog

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countValues(p payloadV1) int {
	total := 0
	for _, stream := range p.Streams {
		total += len(stream.Values)
	}
	return total
}

func TestQueueHandler_FlushesOnCapacity(t *testing.T) {
	received := make(chan payloadV1, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- decodePayloadV1(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{
		URL:           server.URL,
		Version:       "1",
		BatchSize:     5,
		FlushInterval: time.Second,
	})
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "m"})
	}

	// The batch fills within milliseconds; it must not wait for the
	// interval.
	select {
	case payload := <-received:
		assert.Equal(t, 5, countValues(payload))
	case <-time.After(500 * time.Millisecond):
		t.Fatal("capacity-triggered flush did not happen")
	}

	select {
	case <-received:
		t.Fatal("expected exactly one flush")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueueHandler_FlushesOnInterval(t *testing.T) {
	received := make(chan payloadV1, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- decodePayloadV1(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{
		URL:           server.URL,
		Version:       "1",
		BatchSize:     100,
		FlushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer q.Close()

	q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "lonely"})

	select {
	case payload := <-received:
		assert.Equal(t, 1, countValues(payload))
	case <-time.After(500 * time.Millisecond):
		t.Fatal("interval-triggered flush did not happen")
	}
}

func TestQueueHandler_CloseFlushesPending(t *testing.T) {
	received := make(chan payloadV1, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- decodePayloadV1(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{
		URL:           server.URL,
		Version:       "1",
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "pending"})
	}

	require.NoError(t, q.Close())

	select {
	case payload := <-received:
		assert.Equal(t, 3, countValues(payload))
	default:
		t.Fatal("close did not flush the pending batch")
	}

	select {
	case <-received:
		t.Fatal("expected exactly one final flush")
	default:
	}
}

func TestQueueHandler_ExplicitFlush(t *testing.T) {
	received := make(chan payloadV1, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- decodePayloadV1(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{
		URL:           server.URL,
		Version:       "1",
		BatchSize:     100,
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)
	defer q.Close()

	q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "one"})
	q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "two"})

	// Give the worker a moment to pull both off the queue.
	time.Sleep(20 * time.Millisecond)
	q.Flush()

	select {
	case payload := <-received:
		assert.Equal(t, 2, countValues(payload))
	case <-time.After(500 * time.Millisecond):
		t.Fatal("explicit flush did not deliver")
	}
}

func TestQueueHandler_DropsOnOverflow(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{})
	first := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if first {
			first = false
			close(arrived)
			<-release
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{
		URL:           server.URL,
		Version:       "1",
		BatchSize:     1,
		FlushInterval: time.Hour,
		QueueSize:     2,
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)

	// The first record puts the worker into a delivery the server holds
	// open; the queue then fills and further producers drop.
	q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "held"})
	<-arrived

	for i := 0; i < 10; i++ {
		q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "overflow"})
	}
	assert.GreaterOrEqual(t, q.Dropped(), uint64(1))

	close(release)
	require.NoError(t, q.Close())
}

func TestQueueHandler_EmitAfterCloseIsIgnored(t *testing.T) {
	requests := make(chan struct{}, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	q, err := NewQueueHandler(Config{URL: server.URL, Version: "1"})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q.Emit(Record{Time: time.Now(), Level: Info, Logger: "svc", Message: "late"})

	select {
	case <-requests:
		t.Fatal("record emitted after close must be ignored")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueHandler_InvalidConfig(t *testing.T) {
	_, err := NewQueueHandler(Config{URL: "http://loki:3100", Version: "nope"})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
