package main

import (
	"context"
	"device-loan-api/internal/config"
	"device-loan-api/internal/database"
	"device-loan-api/internal/handler"
	"device-loan-api/internal/notification"
	"device-loan-api/internal/repository"
	"device-loan-api/internal/router"
	"device-loan-api/internal/service"
	servicenotification "device-loan-api/internal/service/notification"
	"device-loan-api/pkg/auth"
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
	logg := logger.New(logger.Options{ServiceName: "device-loan-api"})

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logg.Error(context.Background(), "failed to load configuration", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "device-loan-api",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	// Initialize database
	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		logg.Error(ctx, "failed to initialize database", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logg.Error(ctx, "failed to apply migrations", err)
			os.Exit(1)
		}
	}
	if version, err := database.MigrationVersion(ctx, db); err != nil {
		logg.Error(ctx, "failed to read schema version", err)
	} else {
		logg.Info(logg.WithField(ctx, "schema_version", version), "database schema ready")
	}

	// Initialize repositories
	devices := repository.NewDeviceRepository(db)
	ledger := repository.NewLedgerRepository(db)
	restore := repository.NewRestoreRepository(db)
	admins := repository.NewAdminRepository(db)

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	loc := cfg.Location()

	// Reminders are only available when a notification service is configured
	var notifier service.NotificationService
	var notifierHealth handler.HealthChecker
	if cfg.NotificationService.URL != "" {
		client := notification.NewNotifierWithConfig(notification.NotificationConfig{
			URL:            cfg.NotificationService.URL,
			Timeout:        cfg.NotificationService.Timeout,
			RetryAttempts:  cfg.NotificationService.RetryAttempts,
			RetryDelay:     cfg.NotificationService.RetryDelay,
			MaxPayloadSize: cfg.NotificationService.MaxPayloadSize,
		}, logg)
		notifier = servicenotification.NewServiceAdapter(client)
		notifierHealth = client
	} else {
		logg.Warn(ctx, "notification service URL not set; overdue reminders disabled")
	}

	authService := service.NewAuthService(admins, service.AdminCredentials{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, auth.TokenConfig{
		Secret: cfg.Admin.JWTSecret,
		Issuer: cfg.Admin.JWTIssuer,
		TTL:    cfg.Admin.TokenTTL,
	}, logg)
	registryService := service.NewRegistryService(devices, logg)

	ledgerHandler := handler.NewLedgerHandler(
		service.NewLedgerService(devices, ledger, cfg.Loans.AllowedEmailDomains, ledgerMetrics, logg),
		registryService,
		db,
		cfg.Server.MaxBodyBytes,
		logg,
	)
	ledgerHandler.Notifier = notifierHealth
	adminHandler := handler.NewAdminHandler(handler.AdminServices{
		Auth:     authService,
		Registry: registryService,
		Reports:  service.NewReportService(ledger, loc, logg),
		Importer: service.NewImportService(restore, cfg.Loans.ImportEmailDomain, loc, ledgerMetrics, logg),
		Reminder: service.NewReminderService(ledger, notifier, cfg.Loans.LoanPeriod, loc, ledgerMetrics, logg),
	}, cfg.Server.MaxBodyBytes, logg)

	// Setup router with security configuration
	r := router.NewRouter(router.Handlers{
		Ledger:   ledgerHandler,
		Admin:    adminHandler,
		Verifier: authService,
	}, cfg, logg)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.App.Port),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	var metricsServer *http.Server
	if cfg.Server.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server failed", err)
			}
		}()
	}

	// Channel to listen for interrupt signal to gracefully shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"port":             cfg.App.Port,
			"rate_limit_rps":   cfg.Security.RateLimitRPS,
			"rate_limit_burst": cfg.Security.RateLimitBurst,
			"cors":             cfg.Security.EnableCORS,
			"request_timeout":  cfg.Security.RequestTimeout.String(),
		}), "server.starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until we receive a signal or the listener fails
	select {
	case <-done:
		logg.Info(ctx, "server.shutting_down")
	case err := <-serverErr:
		logg.Error(ctx, "failed to start server", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Security.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "metrics server forced to shutdown", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "server forced to shutdown", err)
		return
	}
	logg.Info(ctx, "server.exited")
}
