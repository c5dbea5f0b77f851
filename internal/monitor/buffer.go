// Package monitor is the process-wide observability sink: a bounded in-memory
// log buffer with lazy size/age eviction, synchronous listener fan-out, derived
// health status and threshold-based webhook alerting. The buffer is
// process-local and does not survive a restart.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"mailspool/internal/models"
)

const (
	DefaultMaxLogs = 500
	DefaultMaxAge  = 5 * time.Minute
)

type Listener func(models.LogEntry)

type Buffer struct {
	maxLogs int
	maxAge  time.Duration

	mu          sync.Mutex
	entries     []models.LogEntry
	listeners   map[int]Listener
	nextID      int
	lastErrorAt *time.Time

	now func() time.Time
}

func NewBuffer(maxLogs int, maxAge time.Duration) *Buffer {
	if maxLogs <= 0 {
		maxLogs = DefaultMaxLogs
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Buffer{
		maxLogs:   maxLogs,
		maxAge:    maxAge,
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Log normalizes and appends one entry, fans it out to every listener, then
// prunes the buffer. Invalid levels fall back to info; an error value becomes
// its error text with the details folded into context["error"]. Logging never
// panics the process: a listener's own panic is swallowed per listener.
func (b *Buffer) Log(level models.LogLevel, message interface{}, context map[string]interface{}) models.LogEntry {
	b.mu.Lock()

	now := b.now()
	msg := normalizeMessage(message, &context)
	entry := models.LogEntry{
		TS:      now.UTC().Format(time.RFC3339Nano),
		Level:   normalizeLevel(level),
		Message: msg,
		Context: context,
	}

	b.entries = append(b.entries, entry)
	if entry.Level == models.LevelError {
		t := now
		b.lastErrorAt = &t
	}
	b.prune(now)

	targets := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.Unlock()

	for _, l := range targets {
		invoke(l, entry)
	}

	return copyEntry(entry)
}

func invoke(l Listener, entry models.LogEntry) {
	defer func() {
		_ = recover() // a broken listener must not take down logging
	}()
	l(copyEntry(entry))
}

// GetLastLogs returns a deep copy of the current buffer contents, oldest
// first, after applying the eviction rules against the current time.
func (b *Buffer) GetLastLogs() []models.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())

	out := make([]models.LogEntry, len(b.entries))
	for i, e := range b.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// OnLog registers a listener for every future Log call and returns its
// unsubscribe function. Unsubscribing one listener never affects the others.
func (b *Buffer) OnLog(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = l

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// ListenerCount reports how many listeners are currently subscribed.
func (b *Buffer) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// GetHealthStatus derives health from stored state and the clock: status is
// "error" iff an error-level entry landed within the max-age window.
// LastErrorAt is retained even after the status reverts to ok.
func (b *Buffer) GetHealthStatus() models.HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := models.HealthStatus{Status: "ok"}
	if b.lastErrorAt != nil {
		status.LastErrorAt = b.lastErrorAt.UTC().Format(time.RFC3339Nano)
		if b.now().Sub(*b.lastErrorAt) <= b.maxAge {
			status.Status = "error"
		}
	}
	return status
}

// prune drops entries from the front while the buffer is over capacity or the
// oldest entry is past max age. Callers hold the mutex.
func (b *Buffer) prune(now time.Time) {
	for len(b.entries) > b.maxLogs {
		b.entries = b.entries[1:]
	}
	for len(b.entries) > 0 {
		ts, err := time.Parse(time.RFC3339Nano, b.entries[0].TS)
		if err != nil || now.Sub(ts) <= b.maxAge {
			break
		}
		b.entries = b.entries[1:]
	}
}

func normalizeLevel(level models.LogLevel) models.LogLevel {
	switch level {
	case models.LevelInfo, models.LevelWarn, models.LevelError:
		return level
	default:
		return models.LevelInfo
	}
}

// normalizeMessage renders the message value as text. Errors contribute their
// text as the message and their details under context["error"].
func normalizeMessage(message interface{}, context *map[string]interface{}) string {
	switch m := message.(type) {
	case string:
		return m
	case error:
		if *context == nil {
			*context = make(map[string]interface{})
		}
		(*context)["error"] = map[string]interface{}{
			"type":    fmt.Sprintf("%T", m),
			"message": m.Error(),
		}
		return m.Error()
	default:
		return fmt.Sprint(m)
	}
}

func copyEntry(e models.LogEntry) models.LogEntry {
	out := e
	if e.Context != nil {
		ctx := make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			ctx[k] = v
		}
		out.Context = ctx
	}
	return out
}
