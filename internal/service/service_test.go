package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/clock"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/repository/memory"
)

var (
	now    = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	clock         *clock.Manual
	slotRepo      *memory.SlotRepository
	notifications *flakyNotifications
	store         *SlotStore
	bus           *NotificationBus
	coordinator   *BookingCoordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewManual(now)
	slotRepo := memory.NewSlotRepository()
	notifications := &flakyNotifications{NotificationRepository: memory.NewNotificationRepository()}
	logger := zap.NewNop()

	store := NewSlotStore(slotRepo, clk, logger)
	bus := NewNotificationBus(notifications, clk, logger, BusConfig{
		RetryAttempts: 2,
		RetryBase:     time.Millisecond,
		PushBuffer:    16,
	})

	return &fixture{
		clock:         clk,
		slotRepo:      slotRepo,
		notifications: notifications,
		store:         store,
		bus:           bus,
		coordinator:   NewBookingCoordinator(store, bus, clk, logger),
	}
}

func (f *fixture) createSlot(t *testing.T, owner string, startHour, endHour int) *model.Slot {
	t.Helper()

	slot, err := f.store.CreateSlot(context.Background(), slotInput(owner, startHour, endHour))
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}

func slotInput(owner string, startHour, endHour int) model.SlotInput {
	return model.SlotInput{
		OwnerID:     owner,
		StartTime:   monday.Add(time.Duration(startHour) * time.Hour),
		EndTime:     monday.Add(time.Duration(endHour) * time.Hour),
		Subject:     "Physics",
		SessionType: "Tutoring",
		Location:    model.LocationOnline,
	}
}

// flakyNotifications отказывает в записи, пока failing > 0
type flakyNotifications struct {
	*memory.NotificationRepository
	failing atomic.Int32
	creates atomic.Int32

	// afterCreate вызывается после успешной записи
	afterCreate func(n *model.Notification)
}

var errBackendDown = errors.New("backend down")

func (r *flakyNotifications) Create(ctx context.Context, n *model.Notification) error {
	r.creates.Add(1)
	if r.failing.Load() > 0 {
		return errBackendDown
	}
	if err := r.NotificationRepository.Create(ctx, n); err != nil {
		return err
	}
	if r.afterCreate != nil {
		r.afterCreate(n)
	}
	return nil
}

// recordingNotifier запоминает доставленные уведомления.
// Первые failures вызовов завершаются ошибкой.
type recordingNotifier struct {
	mu       sync.Mutex
	got      []model.Notification
	sent     chan struct{}
	calls    atomic.Int32
	failures atomic.Int32
}

var errChannelDown = errors.New("channel down")

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan struct{}, 16)}
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.calls.Add(1)
	if r.failures.Add(-1) >= 0 {
		return errChannelDown
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	r.sent <- struct{}{}
	return nil
}
