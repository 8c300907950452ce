package service

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/clock"
	"github.com/Freeeeeet/scheduler_engine/internal/metrics"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/repository"
)

// SlotStore владеет множеством слотов и их жизненным циклом.
// Мутации идут только через CreateSlot и ApplyTransition.
type SlotStore struct {
	repo   repository.SlotRepository
	clock  clock.Clock
	logger *zap.Logger
}

func NewSlotStore(repo repository.SlotRepository, clk clock.Clock, logger *zap.Logger) *SlotStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &SlotStore{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

// CreateSlot создаёт свободный слот учителя
func (s *SlotStore) CreateSlot(ctx context.Context, in model.SlotInput) (*model.Slot, error) {
	if s.repo == nil {
		return nil, model.ErrStoreNotConfigured
	}

	// Храним с той же точностью, что и бэкенды, иначе ответ разойдётся с записью
	now := s.clock.Now().Truncate(model.TimePrecision)
	in.StartTime = in.StartTime.Truncate(model.TimePrecision)
	in.EndTime = in.EndTime.Truncate(model.TimePrecision)
	if err := validateSlotInput(in, now); err != nil {
		return nil, s.reject("create", err)
	}

	slot := &model.Slot{
		ID:          uuid.NewString(),
		OwnerID:     strings.TrimSpace(in.OwnerID),
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Subject:     strings.TrimSpace(in.Subject),
		SessionType: strings.TrimSpace(in.SessionType),
		Location:    in.Location,
		State:       model.SlotStateAvailable,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateNonOverlapping(ctx, slot, now); err != nil {
		return nil, s.reject("create", err)
	}

	metrics.SlotsCreated.Inc()
	s.logger.Info("Slot created",
		zap.String("slot_id", slot.ID),
		zap.String("owner_id", slot.OwnerID),
		zap.Time("start_time", slot.StartTime),
		zap.Time("end_time", slot.EndTime),
	)

	return slot, nil
}

// GetSlot получает слот с учётом ленивого истечения
func (s *SlotStore) GetSlot(ctx context.Context, id string) (*model.Slot, error) {
	if s.repo == nil {
		return nil, model.ErrStoreNotConfigured
	}

	slot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return slot.Effective(s.clock.Now()), nil
}

// ListSlots возвращает снимок слотов по фильтру, упорядоченный по времени начала.
// Последовательность конечна; повторный вызов ListSlots даёт свежий снимок.
func (s *SlotStore) ListSlots(ctx context.Context, filter model.SlotFilter) (iter.Seq[model.Slot], error) {
	if s.repo == nil {
		return nil, model.ErrStoreNotConfigured
	}
	if filter.State != "" && !filter.State.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", model.ErrInvalidInput, filter.State)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, fmt.Errorf("%w: empty time range", model.ErrInvalidInput)
	}

	now := s.clock.Now()
	slots, err := s.repo.List(ctx, filter, now)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	return func(yield func(model.Slot) bool) {
		for _, slot := range slots {
			if !yield(*slot.Effective(now)) {
				return
			}
		}
	}, nil
}

// ApplyTransition переводит слот в newState, если версия совпала и переход
// разрешён. Проверка версии и запись это один CAS в хранилище.
// occupantID нужен только для перехода в pending.
func (s *SlotStore) ApplyTransition(ctx context.Context, id string, expectedVersion int64, newState model.SlotState, occupantID string) (*model.Slot, error) {
	if s.repo == nil {
		return nil, model.ErrStoreNotConfigured
	}
	if !newState.IsValid() {
		return nil, s.reject("transition", fmt.Errorf("%w: unknown state %q", model.ErrInvalidInput, newState))
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.reject("transition", err)
	}

	now := s.clock.Now().Truncate(model.TimePrecision)
	if current.IsExpired(now) {
		s.materializeExpiry(ctx, current)
		current = current.Effective(now)
	}

	if current.Version != expectedVersion {
		return nil, s.reject("transition", fmt.Errorf("slot %s at version %d, expected %d: %w",
			id, current.Version, expectedVersion, model.ErrVersionConflict))
	}

	if !model.CanTransition(current.State, newState) {
		return nil, s.reject("transition", fmt.Errorf("slot %s: %s -> %s: %w",
			id, current.State, newState, model.ErrIllegalTransition))
	}

	next := current.Clone()
	next.State = newState
	next.Version = current.Version + 1
	next.UpdatedAt = now

	switch newState {
	case model.SlotStatePending:
		occupantID = strings.TrimSpace(occupantID)
		if occupantID == "" {
			return nil, s.reject("transition", fmt.Errorf("%w: occupant is required for pending", model.ErrInvalidInput))
		}
		next.OccupantID = occupantID
	case model.SlotStateBooked:
		// Занявший слот переходит из pending без изменений
	default:
		next.OccupantID = ""
	}

	if err := s.repo.CompareAndSwap(ctx, next, expectedVersion, current.State); err != nil {
		return nil, s.reject("transition", err)
	}

	metrics.SlotTransitions.WithLabelValues(string(current.State), string(newState)).Inc()
	s.logger.Info("Slot transitioned",
		zap.String("slot_id", id),
		zap.String("from", string(current.State)),
		zap.String("to", string(newState)),
		zap.Int64("version", next.Version),
	)

	return next, nil
}

// materializeExpiry записывает истёкший слот как отменённый.
// Версия и updated_at не меняются: читатели уже видели этот слот отменённым.
// Параллельный переход из available, прочитавший слот до истечения,
// не пройдёт CAS по состоянию.
func (s *SlotStore) materializeExpiry(ctx context.Context, current *model.Slot) {
	expired := current.Clone()
	expired.State = model.SlotStateCancelled

	if err := s.repo.CompareAndSwap(ctx, expired, current.Version, current.State); err != nil {
		// Слот уже изменили параллельно, следующая запись разберётся сама
		s.logger.Debug("Failed to materialize slot expiry",
			zap.String("slot_id", current.ID),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Expired slot cancelled", zap.String("slot_id", current.ID))
}

func (s *SlotStore) reject(operation string, err error) error {
	metrics.SlotRejections.WithLabelValues(operation, model.ErrorCode(err)).Inc()
	return err
}

func validateSlotInput(in model.SlotInput, now time.Time) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return fmt.Errorf("%w: owner is required", model.ErrInvalidInput)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end are required", model.ErrInvalidInput)
	}
	if !in.EndTime.After(in.StartTime) {
		return fmt.Errorf("%w: end must be after start", model.ErrInvalidInput)
	}
	if !in.EndTime.After(now) {
		return fmt.Errorf("%w: slot ends in the past", model.ErrInvalidInput)
	}
	if !in.Location.IsValid() {
		return fmt.Errorf("%w: unknown location %q", model.ErrInvalidInput, in.Location)
	}
	return nil
}
