package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

func TestBookingFlow_RequestApproveCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)

	pending, err := f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student"})
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatePending, pending.State)
	assert.Equal(t, "student", pending.OccupantID)
	assert.Equal(t, int64(2), pending.Version)

	inbox, err := f.bus.ListFor(ctx, "teacher")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationSlotBooked, inbox[0].Kind)
	assert.Equal(t, slot.ID, inbox[0].Payload.SlotID)
	assert.Contains(t, inbox[0].Payload.Summary, "student")
	assert.False(t, inbox[0].Read)

	booked, err := f.coordinator.RespondToRequest(ctx, slot.ID, 2, model.DecisionApprove, "teacher")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateBooked, booked.State)
	assert.Equal(t, "student", booked.OccupantID)
	assert.Equal(t, int64(3), booked.Version)

	inbox, err = f.bus.ListFor(ctx, "student")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationSlotApproved, inbox[0].Kind)

	cancelled, err := f.coordinator.CancelBooking(ctx, slot.ID, 3, "student")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateCancelled, cancelled.State)
	assert.Empty(t, cancelled.OccupantID)
	assert.Equal(t, int64(4), cancelled.Version)

	inbox, err = f.bus.ListFor(ctx, "teacher")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, model.NotificationSlotCancelled, inbox[0].Kind)
	assert.Equal(t, model.NotificationSlotBooked, inbox[1].Kind)

	unread, err := f.bus.UnreadCount(ctx, "teacher")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
}

func TestRespondToRequest_Decline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)

	_, err := f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student", ExpectedVersion: 1})
	require.NoError(t, err)

	_, err = f.coordinator.RespondToRequest(ctx, slot.ID, 2, model.DecisionApprove, "student")
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.coordinator.RespondToRequest(ctx, slot.ID, 2, "maybe", "teacher")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	declined, err := f.coordinator.RespondToRequest(ctx, slot.ID, 2, model.DecisionDecline, "teacher")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateAvailable, declined.State)
	assert.Empty(t, declined.OccupantID)
	assert.Equal(t, int64(3), declined.Version)

	inbox, err := f.bus.ListFor(ctx, "student")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationSlotDeclined, inbox[0].Kind)

	// Отклонённый слот снова открыт для записи
	again, err := f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", again.OccupantID)
	assert.Equal(t, int64(4), again.Version)

	// Повторный ответ на подтверждённую запись недопустим
	_, err = f.coordinator.RespondToRequest(ctx, slot.ID, 4, model.DecisionApprove, "teacher")
	require.NoError(t, err)
	_, err = f.coordinator.RespondToRequest(ctx, slot.ID, 5, model.DecisionApprove, "teacher")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestRequestBooking_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)

	_, err := f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "teacher"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: " "})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: "missing", RequesterID: "student"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student", ExpectedVersion: 7})
	assert.ErrorIs(t, err, model.ErrVersionConflict)

	// Занятие уже началось
	f.clock.Set(monday.Add(10*time.Hour + 15*time.Minute))
	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student"})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	// Истёкший слот считается отменённым
	f.clock.Set(monday.Add(12 * time.Hour))
	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student"})
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	got, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	inbox, err := f.bus.ListFor(ctx, "teacher")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}

func TestRequestBooking_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)

	const students = 32
	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coordinator.RequestBooking(ctx, model.BookingRequest{
				SlotID:          slot.ID,
				RequesterID:     fmt.Sprintf("student-%d", i),
				ExpectedVersion: 1,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrVersionConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := f.store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatePending, got.State)
	assert.Equal(t, int64(2), got.Version)

	inbox, err := f.bus.ListFor(ctx, "teacher")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Contains(t, inbox[0].Payload.Summary, got.OccupantID)
}

func TestCancelBooking_Rules(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)

	_, err := f.coordinator.CancelBooking(ctx, slot.ID, 1, "teacher")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: slot.ID, RequesterID: "student"})
	require.NoError(t, err)

	_, err = f.coordinator.CancelBooking(ctx, slot.ID, 2, "stranger")
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.coordinator.CancelBooking(ctx, slot.ID, 1, "teacher")
	assert.ErrorIs(t, err, model.ErrVersionConflict)

	// Учитель отменяет заявку, уведомляется студент
	cancelled, err := f.coordinator.CancelBooking(ctx, slot.ID, 2, "teacher")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateCancelled, cancelled.State)

	inbox, err := f.bus.ListFor(ctx, "student")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.NotificationSlotCancelled, inbox[0].Kind)

	_, err = f.coordinator.CancelBooking(ctx, slot.ID, 3, "teacher")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
}

func TestWithdrawSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, "teacher", 10, 11)
	taken := f.createSlot(t, "teacher", 12, 13)

	_, err := f.coordinator.WithdrawSlot(ctx, slot.ID, 1, "student")
	assert.ErrorIs(t, err, model.ErrForbidden)

	withdrawn, err := f.coordinator.WithdrawSlot(ctx, slot.ID, 1, "teacher")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateCancelled, withdrawn.State)
	assert.Equal(t, int64(2), withdrawn.Version)

	// Снятый слот больше не мешает новому на то же время
	_, err = f.store.CreateSlot(ctx, slotInput("teacher", 10, 11))
	assert.NoError(t, err)

	_, err = f.coordinator.RequestBooking(ctx, model.BookingRequest{SlotID: taken.ID, RequesterID: "student"})
	require.NoError(t, err)
	_, err = f.coordinator.WithdrawSlot(ctx, taken.ID, 2, "teacher")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	inbox, err := f.bus.ListFor(ctx, "student")
	require.NoError(t, err)
	assert.Empty(t, inbox)
}
