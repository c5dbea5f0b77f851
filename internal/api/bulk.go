package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"mailspool/internal/csvparser"
	"mailspool/internal/metrics"
	"mailspool/internal/models"
	"mailspool/internal/spool"
)

const maxBulkUpload = 4 << 20 // 4 MiB

// SendBulk enqueues one job per row of an uploaded recipients CSV. Multipart
// fields: "recipients" (the CSV file), "subject", "html", and optionally
// "formType" and "idempotencyKey". A supplied idempotency key is suffixed with
// the row's email so re-uploading the same file dedupes row by row.
func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxBulkUpload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("recipients")
	if err != nil {
		http.Error(w, "recipients file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	subject := r.FormValue("subject")
	html := r.FormValue("html")
	if subject == "" || html == "" {
		http.Error(w, "subject and html are required", http.StatusBadRequest)
		return
	}

	recipients, err := csvparser.ParseRecipients(file, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	formType := r.FormValue("formType")
	keyPrefix := r.FormValue("idempotencyKey")

	results := make([]models.EnqueueResult, 0, len(recipients))
	for _, rec := range recipients {
		rowSubject := subject
		if rec.Subject != "" {
			rowSubject = rec.Subject
		}

		key := ""
		if keyPrefix != "" {
			key = fmt.Sprintf("%s:%s", keyPrefix, rec.Email)
		}

		result, err := h.Store.Enqueue(key, spool.EnqueueSpec{
			Message: models.Message{
				To:      []string{rec.Email},
				Subject: rowSubject,
				HTML:    html,
				Data:    rec.Fields,
			},
			FormType: formType,
		})
		if err != nil {
			h.Log.Error("bulk enqueue failed",
				zap.String("to", rec.Email),
				zap.Error(err),
			)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if result.Deduped {
			metrics.JobsDeduped.Inc()
		} else {
			metrics.JobsEnqueued.Inc()
		}
		results = append(results, result)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":   true,
		"jobs": results,
	}); err != nil {
		h.Log.Warn("could not write bulk response", zap.Error(err))
	}
}
