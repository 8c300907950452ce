package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// SlotRepository хранилище слотов. Все реализации обязаны:
//   - проверять пересечения и вставлять слот атомарно в пределах владельца;
//   - выполнять CompareAndSwap как одну неделимую операцию над слотом.
//
// Отсутствующий слот возвращается как model.ErrNotFound.
type SlotRepository interface {
	// CreateNonOverlapping сохраняет слот, если он не пересекается с
	// неотменёнными (с учётом истечения на момент now) слотами владельца
	CreateNonOverlapping(ctx context.Context, slot *model.Slot, now time.Time) error

	GetByID(ctx context.Context, id string) (*model.Slot, error)

	// List возвращает слоты по фильтру, упорядоченные по start_time, затем по id
	List(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error)

	// CompareAndSwap записывает next, только если слот всё ещё в версии
	// expectedVersion и в состоянии expectedState. Другая версия даёт
	// model.ErrVersionConflict, другое состояние при той же версии
	// (записанное истечение) даёт model.ErrIllegalTransition.
	CompareAndSwap(ctx context.Context, next *model.Slot, expectedVersion int64, expectedState model.SlotState) error
}

// NotificationRepository журнал уведомлений по получателям.
// MarkRead и Delete меняют только уведомления указанного получателя.
// Для отсутствующих или чужих id они ничего не делают и не возвращают ошибку.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error

	// ListByRecipient возвращает уведомления получателя, новые первыми
	ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error)

	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, recipientID, id string) error
	CountUnread(ctx context.Context, recipientID string) (int, error)
}
