package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"speaking-practice/internal/app"
	"speaking-practice/internal/config"
	"speaking-practice/internal/observability"
	"speaking-practice/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}

	obs := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)
	obs.Start()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	server := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("Speaking practice control API started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown error")
	}
	application.Shutdown()
	if err := obs.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Observability shutdown error")
	}
}
