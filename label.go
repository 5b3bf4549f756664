package lokilog

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Ordered literal replacements applied before the charset filter.
var labelReplacer = strings.NewReplacer(
	"'", "",
	`"`, "",
	" ", "_",
	".", "_",
	"-", "_",
)

// formatLabel normalizes a raw tag name to the Prometheus label charset.
//
// https://prometheus.io/docs/concepts/data_model/#metric-names-and-labels
//
// An empty result is valid and tells the caller to drop the tag.
func formatLabel(raw string) string {
	replaced := labelReplacer.Replace(raw)
	var b strings.Builder
	b.Grow(len(replaced))
	for _, r := range replaced {
		if r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// labelFormatter memoizes formatLabel behind a bounded LRU so repeated
// tag names cost one cache lookup.
type labelFormatter struct {
	cache *lru.Cache[string, string]
}

func newLabelFormatter() *labelFormatter {
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, string](labelCacheSize)
	return &labelFormatter{cache: cache}
}

func (f *labelFormatter) format(raw string) string {
	if formatted, ok := f.cache.Get(raw); ok {
		return formatted
	}
	formatted := formatLabel(raw)
	f.cache.Add(raw, formatted)
	return formatted
}
