package lokilog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/klauspost/compress/gzip"
)

// BasicAuth is an HTTP basic-auth credential pair attached to every
// push request. It is never logged.
type BasicAuth struct {
	Username string
	Password string
}

// emitter owns the network session and serializes deliveries to the
// Loki push endpoint. The two wire formats share this implementation
// and differ only in payload building.
type emitter struct {
	url                string
	headers            map[string]string
	tenantID           string
	auth               *BasicAuth
	defaultTags        map[string]any
	propsToLabels      []string
	version            Version
	structuredMetadata bool
	gzip               bool
	timeout            time.Duration
	labels             *labelFormatter
	log                logr.Logger

	// mu gates deliveries (TryLock, see emit) and guards the session.
	mu      sync.Mutex
	session *http.Client
}

func newEmitter(cfg Config, log logr.Logger) (*emitter, error) {
	versionKey := cfg.Version
	if versionKey == "" {
		versionKey = defaultVersion
	}
	version, err := ParseVersion(versionKey)
	if err != nil {
		return nil, err
	}
	if version == V0 && hasDeferredTag(cfg.Tags) {
		return nil, &ConfigError{Reason: "deferred tag values require emitter version 1"}
	}
	if version == V0 && cfg.StructuredMetadata {
		return nil, &ConfigError{Reason: "structured metadata requires emitter version 1"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &emitter{
		url:                cfg.URL,
		headers:            cfg.Headers,
		tenantID:           cfg.TenantID,
		auth:               cfg.Auth,
		defaultTags:        cfg.Tags,
		propsToLabels:      cfg.PropsToLabels,
		version:            version,
		structuredMetadata: cfg.StructuredMetadata,
		gzip:               cfg.EnableGzip,
		timeout:            timeout,
		labels:             newLabelFormatter(),
		log:                log,
	}, nil
}

// emit builds the payload for one batch and POSTs it. At most one
// delivery is in flight at a time: a caller that finds another delivery
// in progress drops its batch and returns immediately. That keeps
// memory bounded behind a stuck endpoint and breaks the feedback loop
// when the HTTP stack's own diagnostics are routed through the handler.
func (e *emitter) emit(entries []entry) error {
	if !e.mu.TryLock() {
		e.log.V(1).Info("delivery already in flight, dropping batch", "entries", len(entries))
		return nil
	}
	defer e.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(e.buildPayload(entries))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := e.deliver(body); err != nil {
		// Discard the session so the next attempt starts from a fresh
		// connection. The failed batch is not resubmitted.
		e.closeSessionLocked()
		return err
	}
	return nil
}

func (e *emitter) deliver(body []byte) error {
	if e.gzip {
		compressed, err := gzipBody(body)
		if err != nil {
			return &DeliveryError{Err: err}
		}
		body = compressed
	}

	req, err := http.NewRequest(http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if e.tenantID != "" {
		req.Header.Set(tenantHeader, e.tenantID)
	}
	for name, value := range e.headers {
		req.Header.Set(name, value)
	}
	if e.auth != nil {
		req.SetBasicAuth(e.auth.Username, e.auth.Password)
	}

	resp, err := e.sessionLocked().Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != successStatusCode {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

// sessionLocked lazily builds the HTTP client. Callers hold mu.
func (e *emitter) sessionLocked() *http.Client {
	if e.session == nil {
		e.session = &http.Client{Timeout: e.timeout}
	}
	return e.session
}

func (e *emitter) closeSessionLocked() {
	if e.session != nil {
		e.session.CloseIdleConnections()
		e.session = nil
	}
}

// close releases the network session. The emitter stays usable; the
// next delivery opens a new session.
func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeSessionLocked()
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return buf.Bytes(), nil
}
