// Package main запускает кухонный экран, опрашивающий сервер заказов.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/config"
	"github.com/mmeshcher/comanda/internal/display"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.ParseDisplay()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := display.NewClient(cfg.ServerAddress, cfg.AuthToken)
	poller := display.NewPoller(client, cfg.PollInterval, os.Stdout, logger)

	sugar.Infow("starting kitchen display", "server", cfg.ServerAddress, "interval", cfg.PollInterval)
	if err := poller.Run(ctx); err != nil {
		sugar.Fatalw("kitchen display terminated with error", "error", err)
	}
	sugar.Info("kitchen display stopped")
}
