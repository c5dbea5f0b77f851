package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mailspool/internal/metrics"
	"mailspool/internal/models"
)

const heartbeatInterval = 20 * time.Second

// Health reports the derived monitor status. Always 200: the endpoint itself
// never fails, the payload carries the verdict.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Monitor.GetHealthStatus()); err != nil {
		h.Log.Warn("could not write health response", zap.Error(err))
	}
}

// Logs returns the current buffer contents as a JSON array, oldest first.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entries := h.Monitor.GetLastLogs()
	if entries == nil {
		entries = []models.LogEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.Log.Warn("could not write logs response", zap.Error(err))
	}
}

// Stream serves the monitor buffer as server-sent events: the full backlog on
// connect, every later entry live, and a heartbeat comment every 20 seconds so
// intermediaries keep the connection open. The buffer subscription is torn
// down when the client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.SSEClients.Inc()
	defer metrics.SSEClients.Dec()

	for _, entry := range h.Monitor.GetLastLogs() {
		writeLogEvent(w, entry)
	}
	flusher.Flush()

	// Buffered so a stalled client drops events instead of blocking Log().
	events := make(chan models.LogEntry, 64)
	unsubscribe := h.Monitor.OnLog(func(entry models.LogEntry) {
		select {
		case events <- entry:
		default:
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-events:
			writeLogEvent(w, entry)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeLogEvent(w http.ResponseWriter, entry models.LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
}
