package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create добавляет уведомление в журнал
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, kind, slot_id, summary, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		n.Kind,
		n.Payload.SlotID,
		n.Payload.Summary,
		n.CreatedAt,
		n.Read,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	return nil
}

// ListByRecipient получает уведомления получателя, новые первыми
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	query := `
		SELECT id, recipient_id, kind, slot_id, summary, created_at, read
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, seq DESC
	`

	rows, err := r.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		var n model.Notification
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Kind,
			&n.Payload.SlotID,
			&n.Payload.Summary,
			&n.CreatedAt,
			&n.Read,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead помечает уведомление прочитанным
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`
	if _, err := r.pool.Exec(ctx, query, id, recipientID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead помечает прочитанными все уведомления получателя
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	query := `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE`
	if _, err := r.pool.Exec(ctx, query, recipientID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Delete удаляет уведомление
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id string) error {
	query := `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`
	if _, err := r.pool.Exec(ctx, query, id, recipientID); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// CountUnread считает непрочитанные уведомления
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`
	if err := r.pool.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
