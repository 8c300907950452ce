package calendar

import (
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// GridDays размер сетки месяца: 6 недель по 7 дней
const GridDays = 42

// MaxBuckets предел числа корзин в одной проекции
const MaxBuckets = 1000

const day = 24 * time.Hour

type Options struct {
	// BucketSize ширина корзины. 0 или 24h это календарные дни.
	BucketSize time.Duration
	// Grid сетка 6×7, начиная с WeekStart на или до rangeStart
	Grid      bool
	WeekStart time.Weekday // по умолчанию воскресенье
}

type Bucket struct {
	Date           time.Time    `json:"date"`
	End            time.Time    `json:"end"`
	InCurrentRange bool         `json:"in_current_range"`
	Slots          []model.Slot `json:"slots"`
}

// Summary счётчики слотов по состояниям внутри диапазона
type Summary struct {
	Available int `json:"available"`
	Pending   int `json:"pending"`
	Booked    int `json:"booked"`
	Cancelled int `json:"cancelled"`
}

type Projection struct {
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
	Buckets    []Bucket  `json:"buckets"`
	Summary    Summary   `json:"summary"`
}

// Project раскладывает слоты по корзинам диапазона [rangeStart, rangeEnd).
// Слот попадает ровно в одну корзину по времени начала, остальные отбрасываются.
// Состояние слотов берётся как есть, истечение учитывает вызывающий.
func Project(slots []model.Slot, rangeStart, rangeEnd time.Time, opts Options) (Projection, error) {
	if !rangeStart.Before(rangeEnd) {
		return Projection{}, fmt.Errorf("%w: empty calendar range", model.ErrInvalidInput)
	}
	if opts.BucketSize < 0 {
		return Projection{}, fmt.Errorf("%w: negative bucket size", model.ErrInvalidInput)
	}
	if opts.WeekStart < time.Sunday || opts.WeekStart > time.Saturday {
		return Projection{}, fmt.Errorf("%w: unknown week start %d", model.ErrInvalidInput, opts.WeekStart)
	}

	days := opts.BucketSize == 0 || opts.BucketSize == day

	var buckets []Bucket
	switch {
	case opts.Grid:
		if !days {
			return Projection{}, fmt.Errorf("%w: grid requires day buckets", model.ErrInvalidInput)
		}
		var err error
		buckets, err = gridBuckets(rangeStart, rangeEnd, opts.WeekStart)
		if err != nil {
			return Projection{}, err
		}
	case days:
		if n := dayCount(rangeStart, rangeEnd); n > MaxBuckets {
			return Projection{}, fmt.Errorf("%w: %d day buckets exceed limit %d", model.ErrInvalidInput, n, MaxBuckets)
		}
		buckets = dayBuckets(rangeStart, rangeEnd)
	default:
		if n := fixedCount(rangeStart, rangeEnd, opts.BucketSize); n > MaxBuckets {
			return Projection{}, fmt.Errorf("%w: %d buckets exceed limit %d", model.ErrInvalidInput, n, MaxBuckets)
		}
		buckets = fixedBuckets(rangeStart, rangeEnd, opts.BucketSize)
	}

	sorted := slices.Clone(slots)
	slices.SortStableFunc(sorted, func(a, b model.Slot) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	projection := Projection{
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Buckets:    buckets,
	}

	for _, slot := range sorted {
		start := slot.StartTime.In(rangeStart.Location())
		i, ok := findBucket(buckets, start)
		if !ok {
			continue
		}
		buckets[i].Slots = append(buckets[i].Slots, slot)

		if !start.Before(rangeStart) && start.Before(rangeEnd) {
			projection.Summary.add(slot.State)
		}
	}

	return projection, nil
}

func (s *Summary) add(state model.SlotState) {
	switch state {
	case model.SlotStateAvailable:
		s.Available++
	case model.SlotStatePending:
		s.Pending++
	case model.SlotStateBooked:
		s.Booked++
	case model.SlotStateCancelled:
		s.Cancelled++
	}
}

// startOfDay полночь того же дня в зоне t
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayCount число суточных корзин; в зонах с DST может ошибиться на единицу
func dayCount(rangeStart, rangeEnd time.Time) int64 {
	return fixedCount(startOfDay(rangeStart), rangeEnd, day)
}

func fixedCount(rangeStart, rangeEnd time.Time, size time.Duration) int64 {
	span := rangeEnd.Sub(rangeStart)
	n := int64(span / size)
	if span%size != 0 {
		n++
	}
	return n
}

func dayBuckets(rangeStart, rangeEnd time.Time) []Bucket {
	var buckets []Bucket
	for date := startOfDay(rangeStart); date.Before(rangeEnd); date = date.AddDate(0, 0, 1) {
		buckets = append(buckets, Bucket{
			Date:           date,
			End:            date.AddDate(0, 0, 1),
			InCurrentRange: true,
		})
	}
	return buckets
}

func gridBuckets(rangeStart, rangeEnd time.Time, weekStart time.Weekday) ([]Bucket, error) {
	first := startOfDay(rangeStart)
	offset := (int(first.Weekday()) - int(weekStart) + 7) % 7
	first = first.AddDate(0, 0, -offset)

	last := first.AddDate(0, 0, GridDays)
	if rangeEnd.After(last) {
		return nil, fmt.Errorf("%w: range does not fit into a %d-day grid", model.ErrInvalidInput, GridDays)
	}

	buckets := make([]Bucket, 0, GridDays)
	for i := range GridDays {
		date := first.AddDate(0, 0, i)
		end := date.AddDate(0, 0, 1)
		buckets = append(buckets, Bucket{
			Date:           date,
			End:            end,
			InCurrentRange: end.After(rangeStart) && date.Before(rangeEnd),
		})
	}
	return buckets, nil
}

func fixedBuckets(rangeStart, rangeEnd time.Time, size time.Duration) []Bucket {
	var buckets []Bucket
	for start := rangeStart; start.Before(rangeEnd); start = start.Add(size) {
		end := start.Add(size)
		if end.After(rangeEnd) {
			end = rangeEnd
		}
		buckets = append(buckets, Bucket{
			Date:           start,
			End:            end,
			InCurrentRange: true,
		})
	}
	return buckets
}

// findBucket бинарный поиск корзины [Date, End), содержащей t
func findBucket(buckets []Bucket, t time.Time) (int, bool) {
	i, found := slices.BinarySearchFunc(buckets, t, func(b Bucket, t time.Time) int {
		switch {
		case !t.Before(b.End):
			return -1
		case t.Before(b.Date):
			return 1
		}
		return 0
	})
	return i, found
}
