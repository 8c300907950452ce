// Package queue публикует события слотов в RabbitMQ для внешних потребителей.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// DefaultQueue очередь событий по умолчанию
const DefaultQueue = "scheduler.notifications"

// SlotEvent сообщение в очереди, по одному на уведомление
type SlotEvent struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	Kind           string `json:"kind"`
	SlotID         string `json:"slot_id"`
	Summary        string `json:"summary"`
	CreatedAt      string `json:"created_at"`
}

func eventFromNotification(n model.Notification) SlotEvent {
	return SlotEvent{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Kind:           string(n.Kind),
		SlotID:         n.Payload.SlotID,
		Summary:        n.Payload.Summary,
		CreatedAt:      n.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// channel часть *amqp.Channel, которую использует издатель
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher push-канал в RabbitMQ
type Publisher struct {
	conn   *amqp.Connection
	queue  string
	logger *zap.Logger

	mu sync.Mutex
	ch channel
}

// Dial подключается к брокеру и объявляет durable-очередь
func Dial(url, queueName string, logger *zap.Logger) (*Publisher, error) {
	if queueName == "" {
		queueName = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Durable, чтобы сообщения пережили рестарт брокера
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	logger.Info("Connected to RabbitMQ", zap.String("queue", queueName))

	p := newPublisher(ch, queueName, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queueName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		ch:     ch,
		queue:  queueName,
		logger: logger,
	}
}

func (p *Publisher) Name() string {
	return "rabbitmq"
}

// Notify публикует уведомление как persistent JSON-сообщение
func (p *Publisher) Notify(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(eventFromNotification(n))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.CreatedAt.UTC(),
		Type:         string(n.Kind),
		Body:         body,
	}

	// amqp.Channel не потокобезопасен для публикации
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.logger.Warn("Failed to close rabbitmq channel", zap.Error(err))
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
