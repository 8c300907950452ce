package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// MessageSender часть *bot.Bot, нужная для отправки уведомлений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier дублирует уведомления в Telegram.
// ID получателя это Telegram ID пользователя, нечисловые ID пропускаются.
type Notifier struct {
	sender MessageSender
	logger *zap.Logger
}

func NewNotifier(sender MessageSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: logger,
	}
}

// NewBotNotifier создаёт бота по токену
func NewBotNotifier(token string, logger *zap.Logger) (*Notifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewNotifier(b, logger), nil
}

func (n *Notifier) Name() string {
	return "telegram"
}

func (n *Notifier) Notify(ctx context.Context, notification model.Notification) error {
	chatID, err := strconv.ParseInt(notification.RecipientID, 10, 64)
	if err != nil {
		n.logger.Debug("Recipient has no telegram id, skipping",
			zap.String("recipient_id", notification.RecipientID))
		return nil
	}

	_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   messageText(notification),
	})
	if err != nil {
		return fmt.Errorf("send telegram message to %d: %w", chatID, err)
	}

	return nil
}

func messageText(n model.Notification) string {
	var title string
	switch n.Kind {
	case model.NotificationSlotBooked:
		title = "📥 Новая заявка на занятие"
	case model.NotificationSlotApproved:
		title = "✅ Запись подтверждена"
	case model.NotificationSlotDeclined:
		title = "❌ Заявка отклонена"
	case model.NotificationSlotCancelled:
		title = "🚫 Занятие отменено"
	default:
		title = "🔔 Уведомление"
	}

	if n.Payload.Summary == "" {
		return title
	}
	return title + "\n\n" + n.Payload.Summary
}
