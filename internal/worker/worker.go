// Package worker drives spooled jobs through delivery attempts. One polling
// loop scans the ready directory, honors per-job backoff schedules and moves
// jobs to done/ or failed/ based on the transport outcome. Jobs are processed
// sequentially, so at most one send is in flight process-wide.
package worker

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailspool/internal/email"
	"mailspool/internal/maillog"
	"mailspool/internal/metrics"
	"mailspool/internal/models"
	"mailspool/internal/monitor"
	"mailspool/internal/spool"
)

type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

type Worker struct {
	store     *spool.Store
	transport email.Transport
	reporter  *maillog.Reporter
	buffer    *monitor.Buffer
	limiter   *rate.Limiter
	log       *zap.Logger
	opts      Options

	now func() time.Time
}

func New(
	store *spool.Store,
	transport email.Transport,
	reporter *maillog.Reporter,
	buffer *monitor.Buffer,
	limiter *rate.Limiter,
	logger *zap.Logger,
	opts Options,
) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 1500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Minute
	}

	return &Worker{
		store:     store,
		transport: transport,
		reporter:  reporter,
		buffer:    buffer,
		limiter:   limiter,
		log:       logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Run polls until the context is cancelled. A failed scan is logged and the
// loop carries on at the next tick.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("delivery worker started",
		zap.Duration("poll_interval", w.opts.PollInterval),
		zap.Int("max_attempts", w.opts.MaxAttempts),
	)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.RunCycle(ctx)

		select {
		case <-ctx.Done():
			w.log.Info("delivery worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle processes every ready job once, in directory-listing order.
func (w *Worker) RunCycle(ctx context.Context) {
	names, err := w.store.ListReady()
	if err != nil {
		w.log.Error("spool scan failed", zap.Error(err))
		w.buffer.Log(models.LevelError, err, map[string]interface{}{"op": "scan"})
		return
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		w.processJob(ctx, name)
	}
}

func (w *Worker) processJob(ctx context.Context, name string) {
	job, ok := w.store.Load(name)
	if !ok {
		// Unreadable record: retrying it is meaningless, park it for
		// manual inspection.
		w.log.Warn("unparsable job moved to failed", zap.String("job", name))
		w.buffer.Log(models.LevelWarn, "unparsable job record", map[string]interface{}{"job": name})
		if err := w.store.Move(name, spool.LocationFailed); err != nil {
			w.log.Error("could not park unparsable job", zap.String("job", name), zap.Error(err))
		}
		return
	}

	// A job already marked sending is a crash leftover; it is left for
	// manual reconciliation rather than retried blindly.
	if job.Status == models.StatusSending {
		return
	}

	if job.NextAttemptAt > w.now().UnixMilli() {
		return
	}

	job.Status = models.StatusSending
	if err := w.store.Save(name, job); err != nil {
		w.log.Error("could not mark job as sending", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	metrics.DeliveryAttempts.Inc()

	messageID, err := w.reporter.SendAndLog(ctx, func(ctx context.Context) (string, error) {
		return w.transport.Send(ctx, job.Message)
	}, job.Message, job.FormType, job.Meta)

	if err != nil {
		w.handleFailure(name, job, err)
		return
	}

	w.handleSuccess(name, job, messageID)
}

func (w *Worker) handleSuccess(name string, job *models.MailJob, messageID string) {
	// Attachments and other artifacts are only removed once the mail is out.
	for _, path := range job.CleanupPaths {
		_ = os.Remove(path)
	}

	now := w.now()
	job.Status = models.StatusSent
	job.SentAt = &now

	if err := w.store.Save(name, job); err != nil {
		w.log.Error("could not persist sent job", zap.String("job_id", job.ID), zap.Error(err))
	}
	if err := w.store.Move(name, spool.LocationDone); err != nil {
		w.log.Error("could not archive sent job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	metrics.EmailsSent.Inc()
	w.log.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("message_id", messageID),
		zap.Strings("to", job.Message.To),
	)
	w.buffer.Log(models.LevelInfo, "email sent", map[string]interface{}{
		"jobId":     job.ID,
		"messageId": messageID,
	})
}

func (w *Worker) handleFailure(name string, job *models.MailJob, sendErr error) {
	job.Attempts++
	job.LastError = sendErr.Error()

	if job.Attempts >= w.opts.MaxAttempts {
		now := w.now()
		job.Status = models.StatusFailed
		job.FailedAt = &now
		// Cleanup paths stay untouched so the artifacts survive for
		// manual inspection.
		if err := w.store.Save(name, job); err != nil {
			w.log.Error("could not persist failed job", zap.String("job_id", job.ID), zap.Error(err))
		}
		if err := w.store.Move(name, spool.LocationFailed); err != nil {
			w.log.Error("could not park failed job", zap.String("job_id", job.ID), zap.Error(err))
			return
		}

		metrics.EmailFailures.Inc()
		w.log.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(sendErr),
		)
		w.buffer.Log(models.LevelError, sendErr, map[string]interface{}{
			"jobId":    job.ID,
			"attempts": job.Attempts,
			"terminal": true,
		})
		return
	}

	delay := Backoff(w.opts.BaseDelay, w.opts.MaxDelay, job.Attempts)
	job.Status = models.StatusQueued
	job.NextAttemptAt = w.now().Add(delay).UnixMilli()

	if err := w.store.Save(name, job); err != nil {
		w.log.Error("could not reschedule job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	w.log.Warn("send failed, job rescheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(sendErr),
	)
	w.buffer.Log(models.LevelWarn, "send failed, job rescheduled", map[string]interface{}{
		"jobId":    job.ID,
		"attempts": job.Attempts,
		"delayMs":  delay.Milliseconds(),
	})
}

// Backoff returns the delay before retry attempt number attempt (1-based):
// base doubled per prior attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return delay
}
