package cookiejard

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cookiejar/config"
	"cookiejar/observability/logging"
	telemetry "cookiejar/observability/otel"
)

// Main initialises and runs the cookie jar daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/cookiejard/config.toml", "path to cookiejard configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.SetupWithOptions("cookiejard", cfg.Environment, logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("cookiejard", cfg.Environment))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := Build(stopCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("close service", slog.String("error", err.Error()))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("cookiejard listening",
			slog.String("addr", cfg.ListenAddress),
			slog.Bool("paused", cfg.PauseOnStart),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
