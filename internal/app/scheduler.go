package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OutboxFlusher то, что планировщик периодически дописывает
type OutboxFlusher interface {
	FlushOutbox(ctx context.Context) int
	Run(ctx context.Context)
}

// Scheduler управляет фоновыми задачами: push-воркером и повтором outbox
type Scheduler struct {
	bus      OutboxFlusher
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(bus OutboxFlusher, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		bus:      bus,
		interval: interval,
		logger:   logger,
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("outbox_flush_interval", s.interval))

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.bus.Run(ctx)
		s.logger.Info("Push worker stopped")
	}()
	go func() {
		defer s.wg.Done()
		s.runOutboxTask(ctx)
	}()
}

// Stop останавливает фоновые задачи и ждёт их завершения
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// runOutboxTask периодически дописывает отложенные уведомления
func (s *Scheduler) runOutboxTask(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flushOutbox(ctx)
		case <-ctx.Done():
			s.logger.Info("Outbox task stopped")
			return
		}
	}
}

func (s *Scheduler) flushOutbox(ctx context.Context) {
	remaining := s.bus.FlushOutbox(ctx)
	if remaining > 0 {
		s.logger.Warn("Outbox still has pending notifications", zap.Int("remaining", remaining))
		return
	}
	s.logger.Debug("Outbox flushed")
}
