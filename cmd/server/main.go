package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailspool/internal/api"
	"mailspool/internal/config"
	"mailspool/internal/email"
	"mailspool/internal/maillog"
	"mailspool/internal/metrics"
	"mailspool/internal/monitor"
	"mailspool/internal/spool"
	"mailspool/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config (.env, then environment)
	// ------------------------------------------------
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Spool (durable job store)
	// ------------------------------------------------
	store, err := spool.New(cfg.SpoolDir)
	if err != nil {
		logger.Fatal("spool initialization failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Monitor Buffer + Alerting
	// ------------------------------------------------
	buffer := monitor.NewBuffer(cfg.MonitorMaxLogs, time.Duration(cfg.MonitorMaxAgeMs)*time.Millisecond)

	alerter := monitor.NewAlerter(
		cfg.AlertThreshold,
		cfg.AlertWebhookURL,
		time.Duration(cfg.MonitorMaxAgeMs)*time.Millisecond,
		logger,
	)
	defer alerter.Attach(buffer)()

	// ------------------------------------------------
	// Mail Transport + Audit Reporter
	// ------------------------------------------------
	transport := &email.SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}

	reporter := maillog.NewReporter(
		cfg.MailLogURL,
		time.Duration(cfg.MailLogTimeoutMs)*time.Millisecond,
		logger,
	)

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	// ------------------------------------------------
	// Delivery Worker
	// ------------------------------------------------
	w := worker.New(store, transport, reporter, buffer, limiter, logger, worker.Options{
		PollInterval: time.Duration(cfg.PollMs) * time.Millisecond,
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Store:   store,
		Monitor: buffer,
		Log:     logger,
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/send", apiHandler.SendMail)
	apiMux.HandleFunc("/send/bulk", apiHandler.SendBulk)
	apiMux.HandleFunc("/health", apiHandler.Health)
	apiMux.HandleFunc("/logs", apiHandler.Logs)
	apiMux.HandleFunc("/stream", apiHandler.Stream)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Wait for the worker to finish its current cycle
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
