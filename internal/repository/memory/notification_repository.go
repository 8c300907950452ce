package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// NotificationRepository журнал уведомлений в памяти.
// Порядок вставки в byRecipient и есть порядок журнала.
type NotificationRepository struct {
	mu          sync.RWMutex
	byID        map[string]*model.Notification
	byRecipient map[string][]*model.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		byID:        make(map[string]*model.Notification),
		byRecipient: make(map[string][]*model.Notification),
	}
}

// Create добавляет уведомление в конец журнала получателя
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[n.ID]; exists {
		return fmt.Errorf("create notification: duplicate id %s", n.ID)
	}

	stored := *n
	r.byID[n.ID] = &stored
	r.byRecipient[n.RecipientID] = append(r.byRecipient[n.RecipientID], &stored)

	return nil
}

// ListByRecipient возвращает копии уведомлений, новые первыми
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.byRecipient[recipientID]
	out := make([]*model.Notification, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		n := *log[i]
		out = append(out, &n)
	}

	return out, nil
}

// MarkRead помечает уведомление прочитанным
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.byID[id]; ok && n.RecipientID == recipientID {
		n.Read = true
	}
	return nil
}

// MarkAllRead помечает прочитанными все уведомления получателя
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.byRecipient[recipientID] {
		n.Read = true
	}
	return nil
}

// Delete удаляет уведомление
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok || n.RecipientID != recipientID {
		return nil
	}
	delete(r.byID, id)

	log := r.byRecipient[n.RecipientID]
	for i, item := range log {
		if item.ID == id {
			r.byRecipient[n.RecipientID] = append(log[:i:i], log[i+1:]...)
			break
		}
	}

	return nil
}

// CountUnread считает непрочитанные уведомления получателя
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.byRecipient[recipientID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
