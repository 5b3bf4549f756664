package lokilog

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmitter(t *testing.T, cfg Config) *emitter {
	t.Helper()
	em, err := newEmitter(cfg, logr.Discard())
	require.NoError(t, err)
	return em
}

func TestBuildTags_DerivedTags(t *testing.T) {
	em := newTestEmitter(t, Config{Version: "1"})

	tags := em.buildTags(Record{Level: Warning, Logger: "svc"})

	assert.Equal(t, map[string]string{
		"severity": "warning",
		"logger":   "svc",
	}, tags)
}

func TestBuildTags_RecordTagsOverrideDefaults(t *testing.T) {
	em := newTestEmitter(t, Config{
		Version: "1",
		Tags:    map[string]any{"app": "default", "env": "prod"},
	})

	tags := em.buildTags(Record{
		Level:  Info,
		Logger: "svc",
		Tags:   map[string]any{"app": "override"},
	})

	assert.Equal(t, "override", tags["app"])
	assert.Equal(t, "prod", tags["env"])
}

func TestBuildTags_OverrideAfterFormatting(t *testing.T) {
	// "app.name" and "app_name" collide once formatted; the record tag
	// is merged last and wins.
	em := newTestEmitter(t, Config{
		Version: "1",
		Tags:    map[string]any{"app.name": "default"},
	})

	tags := em.buildTags(Record{
		Tags: map[string]any{"app_name": "record"},
	})

	assert.Equal(t, "record", tags["app_name"])
}

func TestBuildTags_EmptyFormattedKeyDropped(t *testing.T) {
	em := newTestEmitter(t, Config{
		Version: "1",
		Tags:    map[string]any{"!!!": "dropped", "kept": "yes"},
	})

	tags := em.buildTags(Record{Level: Info, Logger: "svc"})

	assert.Equal(t, "yes", tags["kept"])
	assert.NotContains(t, tags, "")
	assert.Equal(t, 3, len(tags))
}

func TestBuildTags_PromotedAttrs(t *testing.T) {
	em := newTestEmitter(t, Config{
		Version:       "1",
		PropsToLabels: []string{"request_id", "missing"},
	})

	tags := em.buildTags(Record{
		Level:  Info,
		Logger: "svc",
		Attrs:  map[string]any{"request_id": "abc-123", "ignored": "x"},
	})

	assert.Equal(t, "abc-123", tags["request_id"])
	assert.NotContains(t, tags, "ignored")
	assert.NotContains(t, tags, "missing")
}

func TestBuildTags_DeferredValueResolvedAtBuildTime(t *testing.T) {
	calls := 0
	em := newTestEmitter(t, Config{
		Version: "1",
		Tags: map[string]any{
			"flushed_at": TagValue(func() any {
				calls++
				return time.Unix(0, 42).UnixNano()
			}),
		},
	})

	assert.Equal(t, 0, calls)
	tags := em.buildTags(Record{Level: Info, Logger: "svc"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, "42", tags["flushed_at"])
}

func TestBuildTags_ScalarValuesStringified(t *testing.T) {
	em := newTestEmitter(t, Config{
		Version: "1",
		Tags:    map[string]any{"port": 8080, "debug": true},
	})

	tags := em.buildTags(Record{})

	assert.Equal(t, "8080", tags["port"])
	assert.Equal(t, "true", tags["debug"])
}

func TestNewEmitter_DeferredTagRejectedForV0(t *testing.T) {
	_, err := newEmitter(Config{
		Version: "0",
		Tags:    map[string]any{"dynamic": TagValue(func() any { return "x" })},
	}, logr.Discard())

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
