package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irfndi/celebrum-correlation-go/internal/api"
	"github.com/irfndi/celebrum-correlation-go/internal/api/handlers"
	"github.com/irfndi/celebrum-correlation-go/internal/config"
	"github.com/irfndi/celebrum-correlation-go/internal/database"
	"github.com/irfndi/celebrum-correlation-go/internal/logging"
	"github.com/irfndi/celebrum-correlation-go/internal/storage"
	"github.com/irfndi/celebrum-correlation-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel, cfg.Environment)
	serviceName := cfg.Telemetry.ServiceName
	version := cfg.Telemetry.ServiceVersion

	provider, err := telemetry.InitTelemetryWithProvider(context.Background(), &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		SampleRate:     1.0,
	}, logger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	backends := database.ConnectBackends(context.Background(), cfg, logrusLogger)
	defer backends.Close()

	artifacts := storage.NewArtifactStore(cfg.Pipeline.ResultsDir)
	if missing := artifacts.Missing(storage.DashboardArtifacts...); len(missing) > 0 {
		logrusLogger.WithField("missing", missing).Warn("Analysis results not found, run the pipeline first")
	}

	routes := api.RouteConfig{
		Artifacts:            artifacts,
		Version:              version,
		CorrelationThreshold: cfg.Pipeline.CorrelationThreshold,
		DistanceThreshold:    cfg.Pipeline.DistanceThreshold,
		Logger:               logrusLogger,
	}
	// Interfaces stay nil when a backend is off so the health check skips it.
	var dbChecker, redisChecker handlers.HealthChecker
	if backends.Postgres != nil {
		dbChecker = backends.Postgres
		routes.Runs = backends.Runs
	}
	if backends.Redis != nil {
		redisChecker = backends.Redis
	}
	routes.DB = dbChecker
	routes.Redis = redisChecker

	router := api.NewRouter(serviceName, logrusLogger)
	if err := api.SetupRoutes(router, routes); err != nil {
		return err
	}

	readTimeout := cfg.Server.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	logger.LogShutdown(serviceName, "signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrusLogger.Info("Server exited gracefully")
	return nil
}
