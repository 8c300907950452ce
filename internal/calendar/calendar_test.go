package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

func slotOn(id string, start time.Time, state model.SlotState) model.Slot {
	return model.Slot{
		ID:        id,
		OwnerID:   "t1",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		State:     state,
		Version:   1,
	}
}

func TestProject_MonthGrid(t *testing.T) {
	t.Parallel()

	// Октябрь 2026 начинается в четверг
	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	var slots []model.Slot
	for d := 0; d < 31; d += 3 {
		start := from.AddDate(0, 0, d).Add(10 * time.Hour)
		slots = append(slots, slotOn(fmt.Sprintf("s%02d", d), start, model.SlotStateAvailable))
	}
	slots = append(slots,
		slotOn("booked", from.AddDate(0, 0, 4).Add(15*time.Hour), model.SlotStateBooked),
		slotOn("far", from.AddDate(0, 3, 0), model.SlotStateAvailable),
	)

	p, err := Project(slots, from, to, Options{Grid: true})
	require.NoError(t, err)
	require.Len(t, p.Buckets, GridDays)

	assert.Equal(t, time.Date(2026, 9, 27, 0, 0, 0, 0, time.UTC), p.Buckets[0].Date)
	assert.Equal(t, time.Sunday, p.Buckets[0].Date.Weekday())
	assert.False(t, p.Buckets[0].InCurrentRange)
	assert.True(t, p.Buckets[4].InCurrentRange)
	assert.False(t, p.Buckets[4+31].InCurrentRange)

	seen := map[string]int{}
	for _, b := range p.Buckets {
		for _, s := range b.Slots {
			seen[s.ID]++
			y, m, d := s.StartTime.Date()
			by, bm, bd := b.Date.Date()
			assert.Equal(t, []int{y, int(m), d}, []int{by, int(bm), bd}, "slot %s in wrong bucket", s.ID)
		}
	}
	assert.Len(t, seen, len(slots)-1)
	for id, n := range seen {
		assert.Equal(t, 1, n, "slot %s", id)
	}
	assert.NotContains(t, seen, "far")

	// 5 октября только подтверждённый слот, 4 октября только свободный
	oct5 := p.Buckets[4+4]
	require.Len(t, oct5.Slots, 1)
	assert.Equal(t, "booked", oct5.Slots[0].ID)
	oct4 := p.Buckets[4+3]
	require.Len(t, oct4.Slots, 1)
	assert.Equal(t, "s03", oct4.Slots[0].ID)

	assert.Equal(t, Summary{Available: 11, Booked: 1}, p.Summary)
}

func TestProject_WeekStartMonday(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	p, err := Project(nil, from, to, Options{Grid: true, WeekStart: time.Monday})
	require.NoError(t, err)
	require.Len(t, p.Buckets, GridDays)
	assert.Equal(t, time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC), p.Buckets[0].Date)
	for _, b := range p.Buckets {
		assert.Empty(t, b.Slots)
	}
}

func TestProject_DayBuckets(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	slots := []model.Slot{
		slotOn("b", from.Add(9*time.Hour), model.SlotStatePending),
		slotOn("a", from.Add(9*time.Hour), model.SlotStateAvailable),
		slotOn("c", from.AddDate(0, 0, 6).Add(23*time.Hour), model.SlotStateCancelled),
		slotOn("late", to, model.SlotStateAvailable),
		slotOn("early", from.Add(-time.Minute), model.SlotStateAvailable),
	}

	p, err := Project(slots, from, to, Options{})
	require.NoError(t, err)
	require.Len(t, p.Buckets, 7)

	require.Len(t, p.Buckets[0].Slots, 2)
	assert.Equal(t, "a", p.Buckets[0].Slots[0].ID)
	assert.Equal(t, "b", p.Buckets[0].Slots[1].ID)
	require.Len(t, p.Buckets[6].Slots, 1)
	assert.Equal(t, "c", p.Buckets[6].Slots[0].ID)
	for _, b := range p.Buckets {
		assert.True(t, b.InCurrentRange)
	}

	assert.Equal(t, Summary{Available: 1, Pending: 1, Cancelled: 1}, p.Summary)
}

func TestProject_FixedBuckets(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	to := from.Add(5 * time.Hour)

	slots := []model.Slot{
		slotOn("a", from.Add(30*time.Minute), model.SlotStateAvailable),
		slotOn("b", from.Add(2*time.Hour), model.SlotStateBooked),
		slotOn("c", from.Add(4*time.Hour+30*time.Minute), model.SlotStateAvailable),
	}

	p, err := Project(slots, from, to, Options{BucketSize: 2 * time.Hour})
	require.NoError(t, err)
	require.Len(t, p.Buckets, 3)
	assert.Equal(t, to, p.Buckets[2].End)
	assert.Len(t, p.Buckets[0].Slots, 1)
	assert.Len(t, p.Buckets[1].Slots, 1)
	assert.Len(t, p.Buckets[2].Slots, 1)
}

func TestProject_InvalidOptions(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		opts Options
	}{
		{"empty range", from, from, Options{}},
		{"negative bucket", from, to, Options{BucketSize: -time.Hour}},
		{"grid with hour buckets", from, to, Options{Grid: true, BucketSize: time.Hour}},
		{"grid too long", from, from.AddDate(0, 2, 0), Options{Grid: true}},
		{"bad week start", from, to, Options{Grid: true, WeekStart: 9}},
		{"too many fixed buckets", from, from.AddDate(0, 0, 1), Options{BucketSize: time.Second}},
		{"nanosecond buckets", from, to, Options{BucketSize: time.Nanosecond}},
		{"too many days", from, from.AddDate(3, 0, 0), Options{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Project(nil, tt.from, tt.to, tt.opts)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestProject_BucketLimit(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	p, err := Project(nil, from, from.Add(MaxBuckets*time.Minute), Options{BucketSize: time.Minute})
	require.NoError(t, err)
	assert.Len(t, p.Buckets, MaxBuckets)

	_, err = Project(nil, from, from.Add(MaxBuckets*time.Minute+time.Second), Options{BucketSize: time.Minute})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	p, err = Project(nil, from, from.AddDate(0, 0, 365), Options{})
	require.NoError(t, err)
	assert.Len(t, p.Buckets, 365)
}
