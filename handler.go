// Package lokilog ships log records to a Grafana Loki push endpoint.
//
// Handler delivers records synchronously from the calling goroutine,
// QueueHandler decouples producers from network I/O with a bounded
// queue, one background worker and a size/time batch buffer. Both
// funnel delivery errors into the OnError hook instead of returning
// them to the code path that logged the message.
package lokilog

import (
	"time"

	"github.com/go-logr/logr"
)

// Config configures a Handler or QueueHandler.
type Config struct {
	// URL is the Loki push endpoint, e.g. http://loki:3100/loki/api/v1/push.
	URL string
	// Tags are added to every record handled by this handler. Values may
	// be TagValue thunks (version "1" only), resolved at flush time.
	Tags map[string]any
	// Headers are added to every push request.
	Headers map[string]string
	// TenantID, when set, is sent as the X-Scope-OrgID header.
	TenantID string
	// Auth is an optional basic-auth credential pair.
	Auth *BasicAuth
	// Version selects the push wire format, "0" (legacy) or "1".
	// Defaults to "0". Unknown keys fail construction.
	Version string
	// StructuredMetadata appends each record's attributes to its value
	// tuple as a structured metadata object (version "1" only).
	StructuredMetadata bool
	// PropsToLabels names record attributes promoted to stream labels.
	PropsToLabels []string
	// Formatter renders a record into its log line. Defaults to the
	// record message.
	Formatter LineFormatter
	// BatchSize and FlushInterval bound the QueueHandler batch buffer:
	// a batch is flushed when it holds BatchSize entries or when
	// FlushInterval has passed since the previous flush, whichever
	// comes first. Defaults: 10 entries, 5s.
	BatchSize     int
	FlushInterval time.Duration
	// QueueSize bounds the QueueHandler producer queue. When the queue
	// is full new records are dropped (drop-newest). Default 1000.
	QueueSize int
	// Timeout bounds each push request. Default 5s.
	Timeout time.Duration
	// EnableGzip compresses push bodies.
	EnableGzip bool
	// OnError receives delivery errors, exactly once per failed push.
	// Defaults to logging through Logger. Must not emit through the
	// same handler.
	OnError func(error)
	// Logger receives handler diagnostics. Defaults to logr.Discard().
	Logger logr.Logger
}

// Handler ships each record to Loki synchronously from the calling
// goroutine, guarded so that at most one delivery is in flight; an Emit
// that finds another delivery in progress drops its record. Use
// QueueHandler to keep producers off the network entirely.
type Handler struct {
	emitter   *emitter
	formatter LineFormatter
	onError   func(error)
	log       logr.Logger
}

// NewHandler validates cfg and builds a synchronous handler. The
// network session is created lazily on first delivery.
func NewHandler(cfg Config) (*Handler, error) {
	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	em, err := newEmitter(cfg, log)
	if err != nil {
		return nil, err
	}

	formatter := cfg.Formatter
	if formatter == nil {
		formatter = func(r Record) string { return r.Message }
	}

	h := &Handler{
		emitter:   em,
		formatter: formatter,
		log:       log,
	}
	h.onError = cfg.OnError
	if h.onError == nil {
		h.onError = func(err error) {
			log.Error(err, "failed to push batch to Loki")
		}
	}
	return h, nil
}

// Emit ships one record. Delivery errors never reach the caller; they
// are handed to the OnError hook.
func (h *Handler) Emit(r Record) {
	h.emitBatch([]entry{{record: r, line: h.formatter(r)}})
}

func (h *Handler) emitBatch(entries []entry) {
	if err := h.emitter.emit(entries); err != nil {
		h.onError(err)
	}
}

// Close releases the network session. The handler stays usable; a
// later Emit opens a new session.
func (h *Handler) Close() error {
	h.emitter.close()
	return nil
}
