package monitor

import (
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"mailspool/internal/metrics"
	"mailspool/internal/models"
)

// Alerter watches error-level entries through a buffer subscription and posts
// a webhook once the count inside the trailing window reaches the threshold.
// It then stays quiet until the count falls back below the threshold (rearm).
type Alerter struct {
	threshold  int
	webhookURL string
	window     time.Duration
	client     *resty.Client
	log        *zap.Logger

	mu         sync.Mutex
	errorTimes []time.Time
	fired      bool

	now func() time.Time
}

func NewAlerter(threshold int, webhookURL string, window time.Duration, logger *zap.Logger) *Alerter {
	if window <= 0 {
		window = DefaultMaxAge
	}
	return &Alerter{
		threshold:  threshold,
		webhookURL: webhookURL,
		window:     window,
		client:     resty.New().SetTimeout(10 * time.Second),
		log:        logger,
		now:        time.Now,
	}
}

// Attach subscribes the alerter to a buffer and returns the unsubscribe
// function. With no threshold or no webhook configured the subscription is a
// no-op and nothing ever fires.
func (a *Alerter) Attach(b *Buffer) func() {
	return b.OnLog(a.observe)
}

func (a *Alerter) observe(entry models.LogEntry) {
	if a.threshold <= 0 || a.webhookURL == "" {
		return
	}
	if entry.Level != models.LevelError {
		return
	}

	a.mu.Lock()
	now := a.now()
	cutoff := now.Add(-a.window)

	kept := a.errorTimes[:0]
	for _, t := range a.errorTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.errorTimes = append(kept, now)

	count := len(a.errorTimes)
	var fire bool
	if count >= a.threshold {
		if !a.fired {
			a.fired = true
			fire = true
		}
	} else {
		a.fired = false
	}
	a.mu.Unlock()

	if fire {
		go a.post(count, now)
	}
}

func (a *Alerter) post(count int, firedAt time.Time) {
	body := map[string]interface{}{
		"type":      "monitor_error_threshold",
		"threshold": a.threshold,
		"count":     count,
		"ts":        firedAt.UTC().Format(time.RFC3339Nano),
	}

	resp, err := a.client.R().SetBody(body).Post(a.webhookURL)
	if err != nil {
		a.log.Warn("alert webhook unreachable", zap.Error(err))
		return
	}
	if resp.IsError() {
		a.log.Warn("alert webhook rejected payload",
			zap.Int("status", resp.StatusCode()),
		)
		return
	}

	metrics.AlertsFired.Inc()
}
