package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/clock"
	"github.com/Freeeeeet/scheduler_engine/internal/formatting"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// Publisher принимает уведомления от координатора
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) model.Notification
}

// BookingCoordinator оркестрирует запись студента и ответ учителя.
// Своих блокировок не держит, эксклюзивность даёт CAS в SlotStore.
type BookingCoordinator struct {
	slots  *SlotStore
	bus    Publisher
	clock  clock.Clock
	logger *zap.Logger
}

func NewBookingCoordinator(slots *SlotStore, bus Publisher, clk clock.Clock, logger *zap.Logger) *BookingCoordinator {
	if clk == nil {
		clk = clock.System{}
	}
	return &BookingCoordinator{
		slots:  slots,
		bus:    bus,
		clock:  clk,
		logger: logger,
	}
}

// RequestBooking переводит свободный слот в pending за студентом и
// уведомляет учителя
func (c *BookingCoordinator) RequestBooking(ctx context.Context, req model.BookingRequest) (*model.Slot, error) {
	requesterID := strings.TrimSpace(req.RequesterID)
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester is required", model.ErrInvalidInput)
	}

	slot, err := c.slots.GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}

	expected := req.ExpectedVersion
	if expected == 0 {
		expected = slot.Version
	}
	if slot.Version != expected {
		return nil, c.slots.reject("request", fmt.Errorf("slot %s at version %d, expected %d: %w",
			slot.ID, slot.Version, expected, model.ErrVersionConflict))
	}

	if slot.State != model.SlotStateAvailable {
		return nil, c.slots.reject("request", fmt.Errorf("slot %s is %s: %w",
			slot.ID, slot.State, model.ErrIllegalTransition))
	}

	// Нельзя записаться на уже начавшееся занятие
	if !slot.StartTime.After(c.clock.Now()) {
		return nil, c.slots.reject("request", fmt.Errorf("slot %s already started: %w",
			slot.ID, model.ErrIllegalTransition))
	}

	if slot.OwnerID == requesterID {
		return nil, c.slots.reject("request", fmt.Errorf("owner cannot book own slot: %w", model.ErrForbidden))
	}

	updated, err := c.slots.ApplyTransition(ctx, slot.ID, expected, model.SlotStatePending, requesterID)
	if err != nil {
		return nil, err
	}

	c.notify(ctx, updated.OwnerID, model.NotificationSlotBooked, updated,
		fmt.Sprintf("New booking request from %s: %s", requesterID, formatting.DescribeSlot(updated)))

	c.logger.Info("Booking requested",
		zap.String("slot_id", updated.ID),
		zap.String("requester_id", requesterID),
	)

	return updated, nil
}

// RespondToRequest одобряет или отклоняет заявку. Отвечать может только владелец.
func (c *BookingCoordinator) RespondToRequest(ctx context.Context, slotID string, expectedVersion int64, decision model.Decision, actorID string) (*model.Slot, error) {
	var target model.SlotState
	switch decision {
	case model.DecisionApprove:
		target = model.SlotStateBooked
	case model.DecisionDecline:
		target = model.SlotStateAvailable
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", model.ErrInvalidInput, decision)
	}

	slot, err := c.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.OwnerID != actorID {
		return nil, c.slots.reject("respond", fmt.Errorf("only owner can respond: %w", model.ErrForbidden))
	}

	if slot.Version != expectedVersion {
		return nil, c.slots.reject("respond", fmt.Errorf("slot %s at version %d, expected %d: %w",
			slot.ID, slot.Version, expectedVersion, model.ErrVersionConflict))
	}

	// Запоминаем студента до перехода: при отказе слот его теряет
	occupantID := slot.OccupantID

	updated, err := c.slots.ApplyTransition(ctx, slotID, expectedVersion, target, "")
	if err != nil {
		return nil, err
	}

	if decision == model.DecisionApprove {
		c.notify(ctx, occupantID, model.NotificationSlotApproved, updated,
			"Booking approved: "+formatting.DescribeSlot(updated))
	} else {
		c.notify(ctx, occupantID, model.NotificationSlotDeclined, updated,
			"Booking declined: "+formatting.DescribeSlot(updated))
	}

	c.logger.Info("Booking request answered",
		zap.String("slot_id", slotID),
		zap.String("decision", string(decision)),
		zap.String("occupant_id", occupantID),
	)

	return updated, nil
}

// CancelBooking отменяет заявку или подтверждённую запись.
// Отменить могут владелец или студент, уведомляется другая сторона.
func (c *BookingCoordinator) CancelBooking(ctx context.Context, slotID string, expectedVersion int64, actorID string) (*model.Slot, error) {
	slot, err := c.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.Version != expectedVersion {
		return nil, c.slots.reject("cancel", fmt.Errorf("slot %s at version %d, expected %d: %w",
			slot.ID, slot.Version, expectedVersion, model.ErrVersionConflict))
	}

	if !slot.State.HasOccupant() {
		return nil, c.slots.reject("cancel", fmt.Errorf("slot %s is %s: %w",
			slot.ID, slot.State, model.ErrIllegalTransition))
	}

	var recipient string
	switch actorID {
	case slot.OwnerID:
		recipient = slot.OccupantID
	case slot.OccupantID:
		recipient = slot.OwnerID
	default:
		return nil, c.slots.reject("cancel", fmt.Errorf("actor is not a party of slot %s: %w", slot.ID, model.ErrForbidden))
	}

	updated, err := c.slots.ApplyTransition(ctx, slotID, expectedVersion, model.SlotStateCancelled, "")
	if err != nil {
		return nil, err
	}

	c.notify(ctx, recipient, model.NotificationSlotCancelled, updated,
		"Booking cancelled: "+formatting.DescribeSlot(updated))

	c.logger.Info("Booking cancelled",
		zap.String("slot_id", slotID),
		zap.String("actor_id", actorID),
	)

	return updated, nil
}

// WithdrawSlot снимает свободный слот владельцем. Никого не уведомляет.
func (c *BookingCoordinator) WithdrawSlot(ctx context.Context, slotID string, expectedVersion int64, actorID string) (*model.Slot, error) {
	slot, err := c.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.OwnerID != actorID {
		return nil, c.slots.reject("withdraw", fmt.Errorf("only owner can withdraw: %w", model.ErrForbidden))
	}

	if slot.Version != expectedVersion {
		return nil, c.slots.reject("withdraw", fmt.Errorf("slot %s at version %d, expected %d: %w",
			slot.ID, slot.Version, expectedVersion, model.ErrVersionConflict))
	}

	// pending -> cancelled тоже допустимо, но это отмена записи, а не снятие слота
	if slot.State != model.SlotStateAvailable {
		return nil, c.slots.reject("withdraw", fmt.Errorf("slot %s is %s: %w",
			slot.ID, slot.State, model.ErrIllegalTransition))
	}

	updated, err := c.slots.ApplyTransition(ctx, slotID, expectedVersion, model.SlotStateCancelled, "")
	if err != nil {
		return nil, err
	}

	c.logger.Info("Slot withdrawn", zap.String("slot_id", slotID))

	return updated, nil
}

func (c *BookingCoordinator) notify(ctx context.Context, recipientID string, kind model.NotificationKind, slot *model.Slot, summary string) {
	if c.bus == nil || recipientID == "" {
		return
	}
	c.bus.Publish(ctx, model.Notification{
		RecipientID: recipientID,
		Kind:        kind,
		Payload: model.NotificationPayload{
			SlotID:  slot.ID,
			Summary: summary,
		},
	})
}
