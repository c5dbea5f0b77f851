package models

type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one record in the monitor's in-memory buffer.
type LogEntry struct {
	TS      string                 `json:"ts"` // ISO-8601
	Level   LogLevel               `json:"level"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

// HealthStatus is derived from the buffer state at query time, never stored.
type HealthStatus struct {
	Status      string `json:"status"` // "ok" or "error"
	LastErrorAt string `json:"lastErrorAt,omitempty"`
}
