package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailspool/internal/models"
)

func bulkRequest(t *testing.T, csv string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("recipients", "recipients.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/send/bulk", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSendBulk_EnqueuesOneJobPerRecipient(t *testing.T) {
	h, _ := newTestHandler(t)

	csv := "Email,Nom\nalice@example.com,Alice\nbob@example.com,Bob\n"
	req := bulkRequest(t, csv, map[string]string{
		"subject":  "Relance",
		"html":     "<p>Bonjour</p>",
		"formType": "presence",
	})

	rec := httptest.NewRecorder()
	h.SendBulk(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		OK   bool                   `json:"ok"`
		Jobs []models.EnqueueResult `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Len(t, resp.Jobs, 2)

	names, err := h.Store.ListReady()
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestSendBulk_ReuploadDedupesRowByRow(t *testing.T) {
	h, _ := newTestHandler(t)

	csv := "Email\nalice@example.com\n"
	fields := map[string]string{
		"subject":        "Relance",
		"html":           "<p>Bonjour</p>",
		"idempotencyKey": "campagne-09",
	}

	first := httptest.NewRecorder()
	h.SendBulk(first, bulkRequest(t, csv, fields))
	second := httptest.NewRecorder()
	h.SendBulk(second, bulkRequest(t, csv, fields))

	require.Equal(t, http.StatusAccepted, second.Code)

	var resp struct {
		Jobs []models.EnqueueResult `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.True(t, resp.Jobs[0].Deduped)

	names, err := h.Store.ListReady()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestSendBulk_RequiresSubjectAndBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := bulkRequest(t, "Email\nalice@example.com\n", map[string]string{"subject": "x"})
	rec := httptest.NewRecorder()
	h.SendBulk(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendBulk_RequiresRecipientsFile(t *testing.T) {
	h, _ := newTestHandler(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("subject", "x"))
	require.NoError(t, writer.WriteField("html", "<p>x</p>"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/send/bulk", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	h.SendBulk(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
