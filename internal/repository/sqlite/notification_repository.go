package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create добавляет уведомление в журнал
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, slot_id, summary, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.RecipientID,
		string(n.Kind),
		n.Payload.SlotID,
		n.Payload.Summary,
		toMillis(n.CreatedAt),
		n.Read,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByRecipient получает уведомления получателя, новые первыми
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, kind, slot_id, summary, created_at, read
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, seq DESC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		var (
			n         model.Notification
			kind      string
			createdAt int64
		)
		err := rows.Scan(&n.ID, &n.RecipientID, &kind, &n.Payload.SlotID, &n.Payload.Summary, &createdAt, &n.Read)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = model.NotificationKind(kind)
		n.CreatedAt = fromMillis(createdAt)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead помечает уведомление прочитанным
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?`, id, recipientID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead помечает прочитанными все уведомления получателя
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`, recipientID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Delete удаляет уведомление
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// CountUnread считает непрочитанные уведомления
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
