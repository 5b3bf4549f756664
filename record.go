package lokilog

import "time"

// Level is the severity of a log record.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Record is one log event handed to a handler. The handler treats it as
// read-only; it is folded into a batch and never referenced afterwards.
type Record struct {
	Time    time.Time
	Level   Level
	Logger  string
	Message string
	// Attrs holds arbitrary record attributes. Attributes named in
	// Config.PropsToLabels are promoted to stream labels; with
	// Config.StructuredMetadata they are attached to the value tuple.
	Attrs map[string]any
	// Tags are extra labels attached by the caller for this record only.
	// They override default and derived tags with the same formatted key.
	Tags map[string]any
}

// LineFormatter renders a record into the log line sent to Loki.
type LineFormatter func(Record) string

// entry pairs a record with its already-formatted line while it waits in
// the queue and batch buffer.
type entry struct {
	record Record
	line   string
}
