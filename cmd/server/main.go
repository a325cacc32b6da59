// Package main is the entry point for the back-office API server.
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

	"backoffice/internal/config"
	v1 "backoffice/internal/infrastructure/http/v1"
	"backoffice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     cfg.App.Name,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting backoffice server", "env", cfg.App.Env, "driver", cfg.Database.Driver)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open storage", "error", err)
	}
	defer st.Close()

	guard, closeGuard, err := replayGuard(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create webhook replay guard", "error", err)
	}
	defer closeGuard()

	services, staff, err := buildServices(cfg, st, guard)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Services:       services,
		Logger:         log,
		StaffValidator: staff,
		Idempotency:    st.idempotency,
		Pinger:         st.pinger,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port, "idempotency", st.idempotency != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
