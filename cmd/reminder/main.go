package main

import (
	"context"
	"device-loan-api/internal/config"
	"device-loan-api/internal/database"
	"device-loan-api/internal/notification"
	"device-loan-api/internal/reminder"
	"device-loan-api/internal/repository"
	"device-loan-api/internal/service"
	servicenotification "device-loan-api/internal/service/notification"
	"device-loan-api/pkg/logger"
	"device-loan-api/pkg/metrics"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "reminder-worker"})

	cfg, err := config.LoadConfig()
	requireResource(logg, "config", err)
	requireResource(logg, "reminder config", cfg.ValidateReminderWorker())

	logg = logger.New(logger.Options{
		ServiceName: "reminder-worker",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, cfg)
	requireResource(logg, "database", err)
	defer db.Close()

	store, err := reminder.NewRedisStore(ctx, cfg.Redis)
	requireResource(logg, "redis", err)
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	lock, err := reminder.NewRedisLock(store, cfg.Reminder.LockKey, cfg.Reminder.LockTTL)
	requireResource(logg, "reminder lock", err)

	client := notification.NewNotifierWithConfig(notification.NotificationConfig{
		URL:            cfg.NotificationService.URL,
		Timeout:        cfg.NotificationService.Timeout,
		RetryAttempts:  cfg.NotificationService.RetryAttempts,
		RetryDelay:     cfg.NotificationService.RetryDelay,
		MaxPayloadSize: cfg.NotificationService.MaxPayloadSize,
	}, logg)

	reminders := service.NewReminderService(
		repository.NewLedgerRepository(db),
		servicenotification.NewServiceAdapter(client),
		cfg.Loans.LoanPeriod,
		cfg.Location(),
		metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	job, err := reminder.NewOverdueReminderJob(reminders)
	requireResource(logg, "overdue reminder job", err)

	worker, err := reminder.NewService(reminder.ServiceParams{
		Logger:   logg,
		Registry: reminder.NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reminder.Interval,
	})
	requireResource(logg, "reminder worker", err)

	if cfg.Server.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server failed", err)
			}
		}()
		defer metricsServer.Close()
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"interval": cfg.Reminder.Interval.String(),
		"lock_key": cfg.Reminder.LockKey,
	})
	logg.Info(ctx, "reminder.worker_starting")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reminder worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "reminder.worker_shutdown")
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to initialize "+name, err)
	os.Exit(1)
}
