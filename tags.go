package lokilog

import "fmt"

// TagValue defers resolution of a tag value until the batch it belongs
// to is flushed, allowing per-flush dynamic labels. Only supported by
// emitter version "1"; version "0" rejects deferred default tags at
// construction.
type TagValue func() any

// buildTags returns the stream labels for one record: default tags,
// then derived severity/logger tags, then promoted record attributes,
// then record-level tags. Later merges win, including collisions that
// only appear after key formatting. Tags whose formatted key is empty
// are dropped.
func (e *emitter) buildTags(r Record) map[string]string {
	tags := make(map[string]string, len(e.defaultTags)+2+len(r.Tags))
	for name, value := range e.defaultTags {
		e.setTag(tags, name, value)
	}
	e.setTag(tags, levelTag, r.Level.String())
	e.setTag(tags, loggerTag, r.Logger)
	for _, prop := range e.propsToLabels {
		if value, ok := r.Attrs[prop]; ok && value != nil {
			e.setTag(tags, prop, value)
		}
	}
	for name, value := range r.Tags {
		e.setTag(tags, name, value)
	}
	return tags
}

func (e *emitter) setTag(tags map[string]string, name string, value any) {
	key := e.labels.format(name)
	if key == "" {
		return
	}
	if deferred, ok := value.(TagValue); ok {
		value = deferred()
	}
	tags[key] = fmt.Sprint(value)
}

// hasDeferredTag reports whether any default tag value is a TagValue.
func hasDeferredTag(tags map[string]any) bool {
	for _, value := range tags {
		if _, ok := value.(TagValue); ok {
			return true
		}
	}
	return false
}
