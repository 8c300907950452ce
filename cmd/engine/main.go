package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/app"
	"github.com/Freeeeeet/scheduler_engine/internal/clock"
	"github.com/Freeeeeet/scheduler_engine/internal/config"
	"github.com/Freeeeeet/scheduler_engine/internal/controller/httpapi"
	"github.com/Freeeeeet/scheduler_engine/internal/controller/telegram"
	"github.com/Freeeeeet/scheduler_engine/internal/queue"
	"github.com/Freeeeeet/scheduler_engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting scheduler engine",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer storage.Close()

	clk := clock.System{}
	slots := service.NewSlotStore(storage.Slots, clk, logger)
	bus := service.NewNotificationBus(storage.Notifications, clk, logger, service.BusConfig{
		RetryAttempts: cfg.NotifyRetryAttempts,
		RetryBase:     cfg.NotifyRetryBase,
	})
	coordinator := service.NewBookingCoordinator(slots, bus, clk, logger)

	// Push-каналы подключаются, только если заданы в конфиге
	if cfg.TelegramToken != "" {
		notifier, err := telegram.NewBotNotifier(cfg.TelegramToken, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram notifier", zap.Error(err))
		}
		bus.Subscribe(notifier)
		logger.Info("Telegram notifier enabled")
	}
	if cfg.AMQPURL != "" {
		publisher, err := queue.Dial(cfg.AMQPURL, queue.DefaultQueue, logger)
		if err != nil {
			logger.Fatal("Failed to connect to rabbitmq", zap.Error(err))
		}
		defer publisher.Close()
		bus.Subscribe(publisher)
	}

	scheduler := app.NewScheduler(bus, cfg.OutboxFlushInterval, logger)
	scheduler.Start(ctx)

	server := httpapi.NewServer(&httpapi.Options{
		Address:       cfg.HTTPAddr,
		Slots:         slots,
		Coordinator:   coordinator,
		Notifications: bus,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// Push-воркер должен остановиться до финальной записи outbox,
	// иначе часть push-ей останется в канале
	scheduler.Stop()

	// Последняя попытка дописать отложенные уведомления
	if remaining := bus.FlushOutbox(shutdownCtx); remaining > 0 {
		logger.Warn("Notifications lost on shutdown", zap.Int("remaining", remaining))
	}
	if delivered := bus.Drain(shutdownCtx); delivered > 0 {
		logger.Info("Delivered pending pushes", zap.Int("count", delivered))
	}

	logger.Info("Scheduler engine stopped")
}
