// Package main запускает HTTP-сервер сервиса заказов ресторана.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/comanda/internal/clock"
	"github.com/mmeshcher/comanda/internal/config"
	"github.com/mmeshcher/comanda/internal/handler"
	"github.com/mmeshcher/comanda/internal/middleware"
	"github.com/mmeshcher/comanda/internal/notify"
	"github.com/mmeshcher/comanda/internal/repository"
	"github.com/mmeshcher/comanda/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var (
		repo service.Repository
		clk  service.Clock
	)
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		// Источник серверного времени: часы БД.
		repo, clk = pg, pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo, clk = repository.NewMemoryRepository(), clock.System{}
	}

	var notifier service.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitMQURL != "" {
		amqpNotifier, err := notify.DialAMQP(cfg.RabbitMQURL, logger)
		if err != nil {
			sugar.Fatalw("rabbitmq initialization error", "error", err.Error())
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}

	svc := service.NewService(repo, clk, notifier, logger, service.Settings{
		Thresholds:     cfg.Thresholds(),
		PaymentMethods: cfg.PaymentMethods,
	})
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, terminal tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая проверка заказов, просроченных кухней
	g.Go(func() error {
		svc.StartSLAMonitor(ctx, cfg.SLACheckInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting comanda server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
