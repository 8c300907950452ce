package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/clock"
	"github.com/Freeeeeet/scheduler_engine/internal/metrics"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/repository"
)

// Notifier внешний канал доставки (Telegram, очередь)
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n model.Notification) error
}

type BusConfig struct {
	RetryAttempts int           // попыток записи на один элемент outbox за проход
	RetryBase     time.Duration // начальная задержка экспоненциального backoff
	PushBuffer    int           // ёмкость очереди push-доставки
}

func DefaultBusConfig() BusConfig {
	return BusConfig{
		RetryAttempts: 5,
		RetryBase:     200 * time.Millisecond,
		PushBuffer:    256,
	}
}

// NotificationBus журнал уведомлений по получателям.
// Publish никогда не возвращает ошибку: при сбое записи уведомление
// паркуется в outbox и дописывается планировщиком.
type NotificationBus struct {
	repo   repository.NotificationRepository
	clock  clock.Clock
	logger *zap.Logger
	cfg    BusConfig

	mu     sync.Mutex
	outbox []model.Notification

	notifiersMu sync.RWMutex
	notifiers   []Notifier

	pushes chan model.Notification
}

func NewNotificationBus(repo repository.NotificationRepository, clk clock.Clock, logger *zap.Logger, cfg BusConfig) *NotificationBus {
	if clk == nil {
		clk = clock.System{}
	}
	defaults := DefaultBusConfig()
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}
	if cfg.PushBuffer <= 0 {
		cfg.PushBuffer = defaults.PushBuffer
	}

	return &NotificationBus{
		repo:   repo,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
		pushes: make(chan model.Notification, cfg.PushBuffer),
	}
}

// Subscribe подключает канал push-доставки
func (b *NotificationBus) Subscribe(n Notifier) {
	b.notifiersMu.Lock()
	defer b.notifiersMu.Unlock()
	b.notifiers = append(b.notifiers, n)
}

// Publish присваивает ID и время и добавляет уведомление в журнал получателя
func (b *NotificationBus) Publish(ctx context.Context, n model.Notification) model.Notification {
	n.ID = uuid.NewString()
	n.CreatedAt = b.clock.Now().Truncate(model.TimePrecision)
	n.Read = false

	metrics.NotificationsPublished.WithLabelValues(string(n.Kind)).Inc()

	if err := b.repo.Create(ctx, &n); err != nil {
		b.park(n)
		b.logger.Warn("Failed to persist notification, parked in outbox",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err),
		)
		return n
	}

	b.offer(n)
	return n
}

// ListFor уведомления получателя, новые первыми
func (b *NotificationBus) ListFor(ctx context.Context, recipientID string) ([]model.Notification, error) {
	stored, err := b.repo.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	// Отложенные записаны позже сохранённых, при равном времени идут первыми
	var out []model.Notification
	b.mu.Lock()
	for i := len(b.outbox) - 1; i >= 0; i-- {
		if b.outbox[i].RecipientID == recipientID {
			out = append(out, b.outbox[i])
		}
	}
	b.mu.Unlock()

	for _, n := range stored {
		out = append(out, *n)
	}

	slices.SortStableFunc(out, func(a, c model.Notification) int {
		return c.CreatedAt.Compare(a.CreatedAt)
	})

	return out, nil
}

// MarkRead идемпотентно помечает уведомление прочитанным.
// Чужие и неизвестные id игнорируются.
func (b *NotificationBus) MarkRead(ctx context.Context, recipientID, id string) error {
	b.mu.Lock()
	for i := range b.outbox {
		if b.outbox[i].ID == id && b.outbox[i].RecipientID == recipientID {
			b.outbox[i].Read = true
			b.mu.Unlock()
			return nil
		}
	}
	b.mu.Unlock()

	return b.repo.MarkRead(ctx, recipientID, id)
}

// MarkAllRead помечает прочитанными все уведомления получателя
func (b *NotificationBus) MarkAllRead(ctx context.Context, recipientID string) error {
	b.mu.Lock()
	for i := range b.outbox {
		if b.outbox[i].RecipientID == recipientID {
			b.outbox[i].Read = true
		}
	}
	b.mu.Unlock()

	return b.repo.MarkAllRead(ctx, recipientID)
}

// Remove идемпотентно удаляет уведомление получателя.
// Хранилище чистится всегда: запись из outbox могла уже дойти до него.
func (b *NotificationBus) Remove(ctx context.Context, recipientID, id string) error {
	if recipientID == "" {
		return nil
	}
	b.unparkFor(recipientID, id)
	return b.repo.Delete(ctx, recipientID, id)
}

// UnreadCount количество непрочитанных уведомлений получателя
func (b *NotificationBus) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count, err := b.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	b.mu.Lock()
	for _, n := range b.outbox {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	b.mu.Unlock()

	return count, nil
}

// FlushOutbox повторяет запись отложенных уведомлений с экспоненциальным
// backoff. Возвращает количество оставшихся в outbox.
func (b *NotificationBus) FlushOutbox(ctx context.Context) int {
	b.mu.Lock()
	pending := make([]string, 0, len(b.outbox))
	for _, n := range b.outbox {
		pending = append(pending, n.ID)
	}
	b.mu.Unlock()

	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}

		var written model.Notification
		backoff := retry.WithMaxRetries(uint64(b.cfg.RetryAttempts), retry.NewExponential(b.cfg.RetryBase))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			current, ok := b.parked(id)
			if !ok {
				// Удалили, пока лежало в outbox
				return nil
			}
			if err := b.repo.Create(ctx, &current); err != nil {
				return retry.RetryableError(err)
			}
			written = current
			return nil
		})
		if err != nil {
			b.logger.Warn("Failed to flush notification",
				zap.String("notification_id", id),
				zap.Error(err),
			)
			continue
		}
		if written.ID == "" {
			continue
		}

		// Пока шла запись, уведомление могли прочитать
		if latest, ok := b.parked(id); ok && latest.Read && !written.Read {
			if err := b.repo.MarkRead(ctx, written.RecipientID, id); err != nil {
				b.logger.Warn("Failed to carry read mark", zap.String("notification_id", id), zap.Error(err))
			}
		}
		if !b.unpark(id) {
			// Удалили во время записи: запись могла опередить удаление
			if err := b.repo.Delete(ctx, written.RecipientID, id); err != nil {
				b.logger.Warn("Failed to drop removed notification", zap.String("notification_id", id), zap.Error(err))
			}
			continue
		}
		b.offer(written)
	}

	return b.OutboxLen()
}

// OutboxLen количество уведомлений в outbox
func (b *NotificationBus) OutboxLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outbox)
}

// Run раздаёт уведомления подписанным каналам до отмены контекста
func (b *NotificationBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.pushes:
			b.deliver(ctx, n)
		}
	}
}

// Drain синхронно доставляет push-и, оставшиеся в очереди.
// Вызывается при остановке, когда Run уже завершён. Возвращает число доставленных.
func (b *NotificationBus) Drain(ctx context.Context) int {
	delivered := 0
	for {
		select {
		case n := <-b.pushes:
			if ctx.Err() != nil {
				b.logger.Warn("Pushes left undelivered on shutdown", zap.Int("pending", len(b.pushes)+1))
				return delivered
			}
			b.deliver(ctx, n)
			delivered++
		default:
			return delivered
		}
	}
}

// deliver отправляет уведомление во все каналы, повторяя временные сбои
func (b *NotificationBus) deliver(ctx context.Context, n model.Notification) {
	b.notifiersMu.RLock()
	notifiers := slices.Clone(b.notifiers)
	b.notifiersMu.RUnlock()

	for _, notifier := range notifiers {
		backoff := retry.WithMaxRetries(uint64(b.cfg.RetryAttempts), retry.NewExponential(b.cfg.RetryBase))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := notifier.Notify(ctx, n); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			metrics.PushDeliveries.WithLabelValues(notifier.Name(), "error").Inc()
			b.logger.Warn("Failed to push notification",
				zap.String("channel", notifier.Name()),
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.PushDeliveries.WithLabelValues(notifier.Name(), "ok").Inc()
	}
}

// offer отдаёт уведомление push-воркеру, не блокируя вызывающего
func (b *NotificationBus) offer(n model.Notification) {
	select {
	case b.pushes <- n:
	default:
		metrics.PushDeliveries.WithLabelValues("bus", "dropped").Inc()
		b.logger.Warn("Push queue is full, dropping push",
			zap.String("notification_id", n.ID),
		)
	}
}

func (b *NotificationBus) park(n model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbox = append(b.outbox, n)
	metrics.NotificationsDeferred.Inc()
	metrics.OutboxSize.Set(float64(len(b.outbox)))
}

func (b *NotificationBus) parked(id string) (model.Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.outbox {
		if n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

func (b *NotificationBus) unpark(id string) bool {
	return b.unparkFor("", id)
}

// unparkFor убирает уведомление из outbox; пустой recipientID совпадает с любым
func (b *NotificationBus) unparkFor(recipientID, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.outbox {
		if n.ID == id && (recipientID == "" || n.RecipientID == recipientID) {
			b.outbox = slices.Delete(b.outbox, i, i+1)
			metrics.OutboxSize.Set(float64(len(b.outbox)))
			return true
		}
	}
	return false
}
