package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailspool/internal/models"
	"mailspool/internal/monitor"
	"mailspool/internal/spool"
)

func newTestHandler(t *testing.T) (*Handler, *monitor.Buffer) {
	t.Helper()

	store, err := spool.New(t.TempDir())
	require.NoError(t, err)

	buffer := monitor.NewBuffer(100, time.Hour)
	return &Handler{Store: store, Monitor: buffer, Log: zap.NewNop()}, buffer
}

func TestSendMail_EnqueuesJob(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"message":{"to":["client@example.com"],"subject":"Devis","html":"<p>ok</p>"},"formType":"commande"}`
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.SendMail(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var result models.EnqueueResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.False(t, result.Deduped)
	assert.NotEmpty(t, result.JobID)

	names, err := h.Store.ListReady()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestSendMail_IdempotencyKeyDedupes(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"idempotencyKey":"form-123","message":{"to":["client@example.com"],"subject":"Devis"}}`

	first := httptest.NewRecorder()
	h.SendMail(first, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)))
	second := httptest.NewRecorder()
	h.SendMail(second, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)))

	var a, b models.EnqueueResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))

	assert.False(t, a.Deduped)
	assert.True(t, b.Deduped)
	assert.Equal(t, a.JobID, b.JobID)
}

func TestSendMail_RejectsEmptyRecipients(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"message":{"subject":"x"}}`))
	rec := httptest.NewRecorder()

	h.SendMail(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMail_RejectsWrongMethod(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.SendMail(rec, httptest.NewRequest(http.MethodGet, "/send", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth_ReflectsMonitorState(t *testing.T) {
	h, buffer := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)

	buffer.Log(models.LevelError, "ftp down", nil)

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Still 200: the endpoint itself never fails.
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "error", status.Status)
	assert.NotEmpty(t, status.LastErrorAt)
}

func TestLogs_ReturnsBufferOldestFirst(t *testing.T) {
	h, buffer := newTestHandler(t)

	buffer.Log(models.LevelInfo, "first", nil)
	buffer.Log(models.LevelWarn, "second", nil)

	rec := httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var entries []models.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}

func TestLogs_EmptyBufferIsEmptyArray(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
