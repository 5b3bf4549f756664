package lokilog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version selects the Loki push wire format.
type Version int

const (
	// V0 is the legacy format used by Loki < 0.4.0: one formatted label
	// string per stream and RFC3339 entry timestamps.
	V0 Version = iota
	// V1 is the current format used by Loki >= 0.4.0: a structured label
	// mapping per stream and epoch-nanosecond value tuples.
	V1
)

// ParseVersion maps a version key to its wire format. The table is
// closed; unknown keys are a configuration error.
func ParseVersion(key string) (Version, error) {
	switch key {
	case "0":
		return V0, nil
	case "1":
		return V1, nil
	default:
		return 0, &ConfigError{Reason: fmt.Sprintf("unknown emitter version %q", key)}
	}
}

const rfc3339Micro = "2006-01-02T15:04:05.000000Z07:00"

type entryV0 struct {
	TS   string `json:"ts"`
	Line string `json:"line"`
}

type streamV0 struct {
	Labels  string    `json:"labels"`
	Entries []entryV0 `json:"entries"`
}

type payloadV0 struct {
	Streams []streamV0 `json:"streams"`
}

type streamV1 struct {
	Stream map[string]string `json:"stream"`
	// Each value is [timestamp, line] or [timestamp, line, metadata]
	// when structured metadata is enabled.
	Values [][]any `json:"values"`
}

type payloadV1 struct {
	Streams []streamV1 `json:"streams"`
}

// buildPayload groups entries by their resolved tag set and renders one
// stream per group. Streams keep first-appearance order and entries
// within a stream keep enqueue order, so the payload is a pure function
// of its inputs (modulo deferred tag values, resolved here).
func (e *emitter) buildPayload(entries []entry) any {
	type group struct {
		tags    map[string]string
		entries []entry
	}
	var order []string
	groups := make(map[string]*group)
	for _, en := range entries {
		tags := e.buildTags(en.record)
		key := labelString(tags)
		g, ok := groups[key]
		if !ok {
			g = &group{tags: tags}
			groups[key] = g
			order = append(order, key)
		}
		g.entries = append(g.entries, en)
	}

	if e.version == V0 {
		payload := payloadV0{Streams: make([]streamV0, 0, len(order))}
		for _, key := range order {
			g := groups[key]
			stream := streamV0{
				Labels:  key,
				Entries: make([]entryV0, 0, len(g.entries)),
			}
			for _, en := range g.entries {
				stream.Entries = append(stream.Entries, entryV0{
					TS:   en.record.Time.UTC().Format(rfc3339Micro),
					Line: en.line,
				})
			}
			payload.Streams = append(payload.Streams, stream)
		}
		return payload
	}

	payload := payloadV1{Streams: make([]streamV1, 0, len(order))}
	for _, key := range order {
		g := groups[key]
		stream := streamV1{
			Stream: g.tags,
			Values: make([][]any, 0, len(g.entries)),
		}
		for _, en := range g.entries {
			value := []any{
				strconv.FormatInt(en.record.Time.UnixNano(), 10),
				en.line,
			}
			if e.structuredMetadata {
				value = append(value, recordMetadata(en.record))
			}
			stream.Values = append(stream.Values, value)
		}
		payload.Streams = append(payload.Streams, stream)
	}
	return payload
}

// labelString renders tags as a LogQL selector, `{k="v",k="v"}`, with
// embedded double quotes escaped. Keys are sorted so the result doubles
// as a stream fingerprint.
func labelString(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.ReplaceAll(tags[key], `"`, `\"`)
		parts = append(parts, fmt.Sprintf(`%s="%s"`, key, value))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// recordMetadata flattens record attributes into the string map Loki
// accepts as structured metadata.
func recordMetadata(r Record) map[string]string {
	meta := make(map[string]string, len(r.Attrs))
	for key, value := range r.Attrs {
		meta[key] = fmt.Sprint(value)
	}
	return meta
}
