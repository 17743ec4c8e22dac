package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"decision-simulator/handler"
	"decision-simulator/internal/imagery"
	"decision-simulator/internal/integrations/replicate"
	"decision-simulator/internal/repository"
	"decision-simulator/internal/usecase"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	store, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Without a token every portrait is a placeholder.
	var gen imagery.Generator
	if cfg.ReplicateAPIToken != "" {
		client, err := replicate.NewClient(
			replicate.StaticToken(cfg.ReplicateAPIToken),
			replicate.WithHTTPClient(&http.Client{Timeout: cfg.ImageTimeout}),
		)
		if err != nil {
			slog.Error("failed to create Replicate client", "err", err)
			os.Exit(1)
		}
		gen = client
	} else {
		slog.Warn("REPLICATE_API_TOKEN not set, using placeholder portraits")
	}

	svc, err := usecase.NewSimulationService(
		store,
		imagery.NewProvider(gen, logger),
		logger,
		usecase.Config{MaxDecisionLen: cfg.MaxDecisionLength, ImageConcurrency: cfg.ImageConcurrency},
	)
	if err != nil {
		slog.Error("failed to create simulation service", "err", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	h, err := handler.NewHandler(svc, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("listening", "addr", srv.Addr, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
	}
}
