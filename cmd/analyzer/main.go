package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agrosense/internal/analyzer"
	"agrosense/internal/config"
	"agrosense/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop pulling new messages on SIGINT/SIGTERM; the in-flight message
	// finishes its ack/nack cycle before Run returns.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	a := analyzer.New(cfg)
	if err := a.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("analyzer exited with error")
		os.Exit(1)
	}
}
