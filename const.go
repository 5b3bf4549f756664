package lokilog

import (
	"net/http"
	"time"
)

const (
	// Status code Loki answers with on a successful push.
	successStatusCode = http.StatusNoContent

	// Label name carrying the record severity.
	levelTag = "severity"
	// Label name carrying the logger name.
	loggerTag = "logger"

	// Header carrying the Loki tenant ID.
	tenantHeader = "X-Scope-OrgID"

	// Size of the LRU cache backing label name formatting.
	labelCacheSize = 256
)

const (
	defaultVersion       = "0"
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	defaultQueueSize     = 1000
	defaultTimeout       = 5 * time.Second
)
