// Package maillog keeps an external, append-only audit trail of every send
// attempt. Reporting is strictly best-effort: a sink failure is logged locally
// and never surfaces to the caller whose send already ran.
package maillog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"mailspool/internal/metrics"
	"mailspool/internal/models"
)

// Entry is one audit record as the sink stores it.
type Entry struct {
	TS        string                 `json:"ts"`
	To        []string               `json:"to"`
	FormType  string                 `json:"formType,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Status    string                 `json:"status"` // "sent" or "failed"
	MessageID string                 `json:"messageId,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// SendFunc is the underlying transport call being decorated.
type SendFunc func(ctx context.Context) (messageID string, err error)

type Reporter struct {
	url    string
	client *resty.Client
	log    *zap.Logger

	now func() time.Time
}

func NewReporter(url string, timeout time.Duration, logger *zap.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Reporter{
		url:    url,
		client: resty.New().SetTimeout(timeout),
		log:    logger,
		now:    time.Now,
	}
}

// SendAndLog performs the transport send first, then appends an audit record
// for the outcome. The caller only ever sees the transport's own result; audit
// failures are swallowed so the trail can never make a real send look failed.
func (r *Reporter) SendAndLog(ctx context.Context, send SendFunc, msg models.Message, formType string, meta map[string]interface{}) (string, error) {
	messageID, sendErr := send(ctx)

	entry := Entry{
		TS:       r.now().UTC().Format(time.RFC3339Nano),
		To:       msg.To,
		FormType: formType,
		Meta:     meta,
	}
	if sendErr != nil {
		entry.Status = "failed"
		entry.Error = sendErr.Error()
	} else {
		entry.Status = "sent"
		entry.MessageID = messageID
	}

	if err := r.append(ctx, entry); err != nil {
		metrics.MailLogFailures.Inc()
		r.log.Warn("mail audit record not written",
			zap.String("status", entry.Status),
			zap.Error(err),
		)
	}

	return messageID, sendErr
}

func (r *Reporter) append(ctx context.Context, entry Entry) error {
	if r.url == "" {
		return nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"action": "appendMailLog",
			"entry":  entry,
		}).
		Post(r.url)
	if err != nil {
		return fmt.Errorf("post mail log entry: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail log sink returned %d", resp.StatusCode())
	}
	return nil
}

// List queries the sink for recent audit records, newest first as the sink
// returns them. q filters server-side; pass "" for everything.
func (r *Reporter) List(ctx context.Context, limit int, q string) ([]Entry, error) {
	if r.url == "" {
		return nil, nil
	}

	var entries []Entry
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"action": "listMailLogs",
			"limit":  strconv.Itoa(limit),
			"q":      q,
		}).
		SetResult(&entries).
		Get(r.url)
	if err != nil {
		return nil, fmt.Errorf("list mail logs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mail log sink returned %d", resp.StatusCode())
	}
	return entries, nil
}
