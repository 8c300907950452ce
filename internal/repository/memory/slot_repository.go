package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

// SlotRepository хранит слоты в памяти.
// Каждый слот лежит в atomic.Pointer на неизменяемый снимок: читатели не
// блокируют писателей, а запись это CAS указателя после сверки версии.
type SlotRepository struct {
	mu      sync.RWMutex
	slots   map[string]*atomic.Pointer[model.Slot]
	byOwner map[string][]string

	ownerLocks sync.Map // ownerID -> *sync.Mutex
}

func NewSlotRepository() *SlotRepository {
	return &SlotRepository{
		slots:   make(map[string]*atomic.Pointer[model.Slot]),
		byOwner: make(map[string][]string),
	}
}

func (r *SlotRepository) ownerLock(ownerID string) *sync.Mutex {
	lock, _ := r.ownerLocks.LoadOrStore(ownerID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateNonOverlapping создаёт слот под блокировкой владельца
func (r *SlotRepository) CreateNonOverlapping(ctx context.Context, slot *model.Slot, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := r.ownerLock(slot.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	for _, existing := range r.ownerSnapshot(slot.OwnerID) {
		if existing.BlocksOwner(now) && existing.Overlaps(slot.StartTime, slot.EndTime) {
			return fmt.Errorf("create slot: %w (conflicts with %s)", model.ErrOverlapConflict, existing.ID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slots[slot.ID]; exists {
		return fmt.Errorf("create slot: duplicate id %s", slot.ID)
	}

	ptr := &atomic.Pointer[model.Slot]{}
	ptr.Store(slot.Clone())
	r.slots[slot.ID] = ptr
	r.byOwner[slot.OwnerID] = append(r.byOwner[slot.OwnerID], slot.ID)

	return nil
}

// GetByID возвращает копию текущего снимка слота
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	ptr, ok := r.slots[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get slot %s: %w", id, model.ErrNotFound)
	}

	return ptr.Load().Clone(), nil
}

// List выбирает слоты по фильтру
func (r *SlotRepository) List(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []*model.Slot
	if filter.OwnerID != "" {
		candidates = r.ownerSnapshot(filter.OwnerID)
	} else {
		r.mu.RLock()
		candidates = make([]*model.Slot, 0, len(r.slots))
		for _, ptr := range r.slots {
			candidates = append(candidates, ptr.Load())
		}
		r.mu.RUnlock()
	}

	var slots []*model.Slot
	for _, slot := range candidates {
		if filter.Matches(slot, now) {
			slots = append(slots, slot.Clone())
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].ID < slots[j].ID
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})

	return slots, nil
}

// CompareAndSwap подменяет снимок слота, если версия совпала
func (r *SlotRepository) CompareAndSwap(ctx context.Context, next *model.Slot, expectedVersion int64, expectedState model.SlotState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	ptr, ok := r.slots[next.ID]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrNotFound)
	}

	current := ptr.Load()
	if current.Version != expectedVersion {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrVersionConflict)
	}
	if current.State != expectedState {
		return fmt.Errorf("update slot %s: stored %s, expected %s: %w", next.ID, current.State, expectedState, model.ErrIllegalTransition)
	}

	// Между Load и CAS слот мог измениться: тогда CAS не пройдёт
	if !ptr.CompareAndSwap(current, next.Clone()) {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrVersionConflict)
	}

	return nil
}

// ownerSnapshot загружает текущие снимки всех слотов владельца
func (r *SlotRepository) ownerSnapshot(ownerID string) []*model.Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOwner[ownerID]
	slots := make([]*model.Slot, 0, len(ids))
	for _, id := range ids {
		slots = append(slots, r.slots[id].Load())
	}
	return slots
}
