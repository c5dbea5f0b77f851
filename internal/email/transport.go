package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"mailspool/internal/models"
)

// Transport is the single capability the delivery worker needs: send one
// message, resolving with a transport message id or an error. Fakes implement
// it in tests; SMTPSender implements it for real.
type Transport interface {
	Send(ctx context.Context, msg models.Message) (messageID string, err error)
}

type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Send delivers one message over SMTP. Transient dial/send errors are retried
// briefly with exponential backoff inside the attempt; the long-horizon retry
// schedule belongs to the worker, not the transport.
func (s *SMTPSender) Send(ctx context.Context, msg models.Message) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
		if msg.Text != "" {
			m.AddAlternative("text/plain", msg.Text)
		}
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	for _, path := range msg.Attachments {
		m.Attach(path)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.Host)
	m.SetHeader("Message-ID", messageID)

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	operation := func() error {
		return d.DialAndSend(m)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("smtp send error: %w", err)
	}

	return messageID, nil
}
