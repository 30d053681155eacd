// Package main is the entry point for the Carmen valuation API server.
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

	"carmen/internal/app"
	"carmen/internal/config"
	"carmen/internal/infrastructure/cache"
	v1 "carmen/internal/infrastructure/http/v1"
	"carmen/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting carmen server",
		"default_method", cfg.Method(),
		"cache_backend", cfg.CacheBackend,
		"timezone", cfg.Timezone,
	)

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	// Movements posted by other processes reach a process-local cache over
	// PostgreSQL NOTIFY; a shared Redis cache is kept fresh by the worker.
	if a.Pool != nil && !a.SharesCache() {
		listener := cache.NewNotifyListener(a.Pool.Unwrap(), cfg.NotifyChannel)
		listener.Subscribe(a.Calculator)
		if err := listener.Start(ctx); err != nil {
			log.Fatalw("failed to start notify listener", "error", err)
		}
		defer listener.Stop()
	}

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Location:     cfg.Location(),
		Settings:     a.Settings,
		Register:     a.Register,
		Valuation:    a.Valuation,
		Averages:     a.Calculator,
		Lots:         a.FIFO,
		HealthChecks: a.Checks,
		Gatherer:     a.Registry,
		Development:  cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
