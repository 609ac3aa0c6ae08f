package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crashfair/internal/config"
	"crashfair/internal/logger"
	"crashfair/internal/server"
)

func gracefulShutdown(srv *server.FiberServer, log *logger.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	// engines refund their open rounds before connections close
	srv.Shutdown()

	log.Info().Msg("server exiting")
	done <- true
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("config", cfg.String()).Msg("starting")

	ctx := context.Background()
	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot build server")
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("cannot start game engines")
	}

	done := make(chan bool, 1)
	go gracefulShutdown(srv, log, done)

	if err := srv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Error().Err(err).Msg("http server error")
		os.Exit(1)
	}

	<-done
	log.Info().Msg("graceful shutdown complete")
}
