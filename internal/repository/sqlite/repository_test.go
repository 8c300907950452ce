package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/app"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/repository/sqlite"
)

var monday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func openTempRepos(t *testing.T) (*sqlite.SlotRepository, *sqlite.NotificationRepository) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator, err := app.NewSQLiteMigrator(db, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Run(context.Background()))

	version, err := migrator.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), version)

	return sqlite.NewSlotRepository(db), sqlite.NewNotificationRepository(db)
}

func slotAt(id, owner string, startHour, endHour int) *model.Slot {
	return &model.Slot{
		ID:          id,
		OwnerID:     owner,
		StartTime:   monday.Add(time.Duration(startHour) * time.Hour),
		EndTime:     monday.Add(time.Duration(endHour) * time.Hour),
		Subject:     "Physics",
		SessionType: "Tutoring",
		Location:    model.LocationOnline,
		State:       model.SlotStateAvailable,
		Version:     1,
		CreatedAt:   monday.Add(-time.Hour),
		UpdatedAt:   monday.Add(-time.Hour),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open(" ")
	assert.Error(t, err)
}

func TestSlotRepository_SQLite(t *testing.T) {
	t.Parallel()

	slots, _ := openTempRepos(t)
	ctx := context.Background()
	now := monday.Add(-time.Hour)

	require.NoError(t, slots.CreateNonOverlapping(ctx, slotAt("a", "t1", 10, 11), now))
	assert.ErrorIs(t, slots.CreateNonOverlapping(ctx, slotAt("b", "t1", 10, 12), now), model.ErrOverlapConflict)
	require.NoError(t, slots.CreateNonOverlapping(ctx, slotAt("c", "t1", 11, 12), now))
	require.NoError(t, slots.CreateNonOverlapping(ctx, slotAt("d", "t2", 8, 9), now))

	got, err := slots.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Physics", got.Subject)
	assert.True(t, got.StartTime.Equal(monday.Add(10*time.Hour)))
	assert.Empty(t, got.OccupantID)

	_, err = slots.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	next := got.Clone()
	next.State = model.SlotStatePending
	next.OccupantID = "s1"
	next.Version = 2
	next.UpdatedAt = now
	require.NoError(t, slots.CompareAndSwap(ctx, next, 1, model.SlotStateAvailable))
	assert.ErrorIs(t, slots.CompareAndSwap(ctx, next, 1, model.SlotStateAvailable), model.ErrVersionConflict)

	missing := next.Clone()
	missing.ID = "missing"
	assert.ErrorIs(t, slots.CompareAndSwap(ctx, missing, 1, model.SlotStateAvailable), model.ErrNotFound)

	pending, err := slots.List(ctx, model.SlotFilter{State: model.SlotStatePending}, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "s1", pending[0].OccupantID)

	occupied, err := slots.List(ctx, model.SlotFilter{OccupantID: "s1"}, now)
	require.NoError(t, err)
	require.Len(t, occupied, 1)
	assert.Equal(t, "a", occupied[0].ID)

	occupied, err = slots.List(ctx, model.SlotFilter{OccupantID: "s2"}, now)
	require.NoError(t, err)
	assert.Empty(t, occupied)

	all, err := slots.List(ctx, model.SlotFilter{}, now)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"d", "a", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	owned, err := slots.List(ctx, model.SlotFilter{OwnerID: "t1", From: monday.Add(11 * time.Hour), To: monday.Add(12 * time.Hour)}, now)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "c", owned[0].ID)

	// Свободные слоты истекли, занятый "a" остаётся pending
	later := monday.Add(24 * time.Hour)
	expired, err := slots.List(ctx, model.SlotFilter{State: model.SlotStateCancelled}, later)
	require.NoError(t, err)
	assert.Len(t, expired, 2)
	available, err := slots.List(ctx, model.SlotFilter{State: model.SlotStateAvailable}, later)
	require.NoError(t, err)
	assert.Empty(t, available)

	// Истёкший слот не мешает новому на то же время
	assert.NoError(t, slots.CreateNonOverlapping(ctx, slotAt("e", "t1", 11, 12), later))

	// Записанное истечение не перезаписывается переходом той же версии
	c, err := slots.GetByID(ctx, "c")
	require.NoError(t, err)
	lapsed := c.Clone()
	lapsed.State = model.SlotStateCancelled
	require.NoError(t, slots.CompareAndSwap(ctx, lapsed, 1, model.SlotStateAvailable))

	request := c.Clone()
	request.State = model.SlotStatePending
	request.OccupantID = "s2"
	request.Version = 2
	assert.ErrorIs(t, slots.CompareAndSwap(ctx, request, 1, model.SlotStateAvailable), model.ErrIllegalTransition)

	c, err = slots.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStateCancelled, c.State)
}

func TestSlotRepository_SQLiteConcurrentSwap(t *testing.T) {
	t.Parallel()

	slots, _ := openTempRepos(t)
	ctx := context.Background()
	slot := slotAt("a", "t1", 10, 11)
	require.NoError(t, slots.CreateNonOverlapping(ctx, slot, monday))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := slot.Clone()
			next.State = model.SlotStatePending
			next.OccupantID = "s"
			next.Version = 2
			errs[i] = slots.CompareAndSwap(ctx, next, 1, model.SlotStateAvailable)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, model.ErrVersionConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestNotificationRepository_SQLite(t *testing.T) {
	t.Parallel()

	_, notifications := openTempRepos(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for _, n := range []*model.Notification{
		{ID: "n1", RecipientID: "t1", Kind: model.NotificationSlotBooked, Payload: model.NotificationPayload{SlotID: "a", Summary: "first"}, CreatedAt: at},
		{ID: "n2", RecipientID: "t1", Kind: model.NotificationSlotCancelled, Payload: model.NotificationPayload{SlotID: "a", Summary: "second"}, CreatedAt: at},
		{ID: "n3", RecipientID: "t1", Kind: model.NotificationSlotBooked, Payload: model.NotificationPayload{SlotID: "b"}, CreatedAt: at.Add(-time.Minute)},
	} {
		require.NoError(t, notifications.Create(ctx, n))
	}

	list, err := notifications.ListByRecipient(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"n2", "n1", "n3"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "second", list[0].Payload.Summary)
	assert.Equal(t, model.NotificationSlotCancelled, list[0].Kind)

	// Чужой получатель ничего не меняет
	require.NoError(t, notifications.MarkRead(ctx, "s1", "n1"))
	require.NoError(t, notifications.Delete(ctx, "s1", "n1"))
	count, err := notifications.CountUnread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, notifications.MarkRead(ctx, "t1", "n1"))
	require.NoError(t, notifications.MarkRead(ctx, "t1", "n1"))
	count, err = notifications.CountUnread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, notifications.Delete(ctx, "t1", "n2"))
	require.NoError(t, notifications.Delete(ctx, "t1", "n2"))
	require.NoError(t, notifications.MarkAllRead(ctx, "t1"))
	count, _ = notifications.CountUnread(ctx, "t1")
	assert.Zero(t, count)

	list, _ = notifications.ListByRecipient(ctx, "t1")
	require.Len(t, list, 2)
	assert.True(t, list[0].Read)
}
