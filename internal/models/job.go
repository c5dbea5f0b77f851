package models

import "time"

type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusSending JobStatus = "sending"
	StatusSent    JobStatus = "sent"
	StatusFailed  JobStatus = "failed"
)

// Message holds the parameters handed to the mail transport. The queue does not
// interpret it beyond the recipient list used for audit records.
type Message struct {
	To          []string               `json:"to"`
	Cc          []string               `json:"cc,omitempty"`
	Subject     string                 `json:"subject"`
	HTML        string                 `json:"html,omitempty"`
	Text        string                 `json:"text,omitempty"`
	Attachments []string               `json:"attachments,omitempty"`
	Headers     map[string]string      `json:"headers,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// MailJob is one persisted request to deliver an email. A job lives as exactly
// one JSON file in exactly one of the spool's ready/done/failed directories.
type MailJob struct {
	ID             string    `json:"jobId"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Status         JobStatus `json:"status"`
	Attempts       int       `json:"attempts"`
	NextAttemptAt  int64     `json:"nextAttemptAt"` // epoch ms

	Message      Message                `json:"message"`
	FormType     string                 `json:"formType,omitempty"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
	CleanupPaths []string               `json:"cleanupPaths,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	FailedAt  *time.Time `json:"failedAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// EnqueueResult is what producers get back from the spool.
type EnqueueResult struct {
	OK      bool   `json:"ok"`
	JobID   string `json:"jobId"`
	Deduped bool   `json:"deduped"`
}
