package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"mailspool/internal/metrics"
	"mailspool/internal/models"
	"mailspool/internal/monitor"
	"mailspool/internal/spool"
)

type Handler struct {
	Store   *spool.Store
	Monitor *monitor.Buffer
	Log     *zap.Logger
}

type enqueueRequest struct {
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	Message        models.Message         `json:"message"`
	FormType       string                 `json:"formType,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	CleanupPaths   []string               `json:"cleanupPaths,omitempty"`
}

// SendMail accepts one mail job and answers with {ok, jobId, deduped}.
func (h *Handler) SendMail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Message.To) == 0 {
		http.Error(w, "message.to must not be empty", http.StatusBadRequest)
		return
	}

	result, err := h.Store.Enqueue(req.IdempotencyKey, spool.EnqueueSpec{
		Message:      req.Message,
		FormType:     req.FormType,
		Meta:         req.Meta,
		CleanupPaths: req.CleanupPaths,
	})
	if err != nil {
		h.Log.Error("enqueue failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if result.Deduped {
		metrics.JobsDeduped.Inc()
	} else {
		metrics.JobsEnqueued.Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.Log.Warn("could not write enqueue response", zap.Error(err))
	}
}
