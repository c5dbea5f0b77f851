package config

import "github.com/kelseyhightower/envconfig"

type Config struct {
	// ----------------------------
	// Spool (job store)
	// ----------------------------
	SpoolDir string `envconfig:"SPOOL_DIR" default:"./spool"`

	// ----------------------------
	// Delivery worker
	// ----------------------------
	PollMs      int `envconfig:"POLL_MS" default:"1500"`
	MaxAttempts int `envconfig:"MAX_ATTEMPTS" default:"10"`
	BaseDelayMs int `envconfig:"BASE_DELAY_MS" default:"2000"`
	MaxDelayMs  int `envconfig:"MAX_DELAY_MS" default:"300000"`
	RateLimit   int `envconfig:"RATE_LIMIT" default:"10"`

	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@mailspool.local"`

	// ----------------------------
	// Mail audit log sink
	// ----------------------------
	MailLogURL       string `envconfig:"MAIL_LOG_URL" default:""`
	MailLogTimeoutMs int    `envconfig:"MAIL_LOG_TIMEOUT_MS" default:"15000"`

	// ----------------------------
	// Monitor buffer + alerting
	// ----------------------------
	MonitorMaxLogs  int    `envconfig:"MONITOR_MAX_LOGS" default:"500"`
	MonitorMaxAgeMs int    `envconfig:"MONITOR_MAX_AGE_MS" default:"300000"`
	AlertThreshold  int    `envconfig:"ALERT_THRESHOLD" default:"0"`
	AlertWebhookURL string `envconfig:"ALERT_WEBHOOK_URL" default:""`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
