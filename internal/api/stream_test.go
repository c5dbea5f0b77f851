package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailspool/internal/models"
)

// readLogEvent consumes lines until one "event: log" block is complete and
// returns its decoded data payload.
func readLogEvent(t *testing.T, r *bufio.Reader) models.LogEntry {
	t.Helper()

	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var entry models.LogEntry
			require.NoError(t, json.Unmarshal([]byte(data), &entry))
			return entry
		}
	}
}

func TestStream_ReplaysBacklogThenForwardsLive(t *testing.T) {
	h, buffer := newTestHandler(t)

	buffer.Log(models.LevelInfo, "backlog-1", nil)
	buffer.Log(models.LevelInfo, "backlog-2", nil)

	server := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	assert.Equal(t, "backlog-1", readLogEvent(t, reader).Message)
	assert.Equal(t, "backlog-2", readLogEvent(t, reader).Message)

	// The handler subscribes after replaying the backlog; wait for the
	// subscription before producing the live entry.
	require.Eventually(t, func() bool {
		return buffer.ListenerCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	buffer.Log(models.LevelWarn, "live-1", map[string]interface{}{"jobId": "j-1"})

	live := readLogEvent(t, reader)
	assert.Equal(t, "live-1", live.Message)
	assert.Equal(t, models.LevelWarn, live.Level)
	assert.Equal(t, "j-1", live.Context["jobId"])
}

func TestStream_DisconnectTearsDownSubscription(t *testing.T) {
	h, buffer := newTestHandler(t)

	server := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer server.Close()

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		cancel()
		resp.Body.Close()
	}

	// All five subscriptions must be gone once the handlers unwind.
	assert.Eventually(t, func() bool {
		return buffer.ListenerCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Logging afterwards must not block on dead clients.
	done := make(chan struct{})
	go func() {
		buffer.Log(models.LevelInfo, "after disconnect", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("log call blocked after client disconnects")
	}
}

func TestStream_RejectsWrongMethod(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Stream(rec, httptest.NewRequest(http.MethodPost, "/stream", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
