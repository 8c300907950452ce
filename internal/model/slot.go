package model

import "time"

// TimePrecision точность, с которой время хранится во всех бэкендах
const TimePrecision = time.Millisecond

type SlotState string

const (
	SlotStateAvailable SlotState = "available" // Открыт для записи
	SlotStatePending   SlotState = "pending"   // Ожидает одобрения учителя
	SlotStateBooked    SlotState = "booked"    // Подтверждено
	SlotStateCancelled SlotState = "cancelled" // Отменено, терминальное состояние
)

// IsValid проверяет что состояние известно
func (s SlotState) IsValid() bool {
	switch s {
	case SlotStateAvailable, SlotStatePending, SlotStateBooked, SlotStateCancelled:
		return true
	}
	return false
}

// HasOccupant сообщает, должен ли в этом состоянии быть занявший слот студент
func (s SlotState) HasOccupant() bool {
	return s == SlotStatePending || s == SlotStateBooked
}

type Location string

const (
	LocationOnline   Location = "online"
	LocationInPerson Location = "in_person"
)

// IsValid проверяет что формат занятия известен
func (l Location) IsValid() bool {
	return l == LocationOnline || l == LocationInPerson
}

// transitions допустимые переходы конечного автомата слота
var transitions = map[SlotState][]SlotState{
	SlotStateAvailable: {SlotStatePending, SlotStateCancelled},
	SlotStatePending:   {SlotStateBooked, SlotStateAvailable, SlotStateCancelled},
	SlotStateBooked:    {SlotStateCancelled},
}

// CanTransition проверяет допустимость перехода from -> to
func CanTransition(from, to SlotState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates возвращает состояния, достижимые из from за один шаг
func NextStates(from SlotState) []SlotState {
	next := transitions[from]
	out := make([]SlotState, len(next))
	copy(out, next)
	return out
}

type Slot struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Subject     string    `json:"subject"`
	SessionType string    `json:"session_type"`
	Location    Location  `json:"location"`
	State       SlotState `json:"state"`
	OccupantID  string    `json:"occupant_id,omitempty"` // пусто, если слот не занят
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Overlaps проверяет пересечение полуинтервалов [start, end)
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// IsExpired истёк ли свободный слот: время закончилось, а записи не было
func (s *Slot) IsExpired(now time.Time) bool {
	return s.State == SlotStateAvailable && !s.EndTime.After(now)
}

// EffectiveState состояние слота с учётом ленивого истечения
func (s *Slot) EffectiveState(now time.Time) SlotState {
	if s.IsExpired(now) {
		return SlotStateCancelled
	}
	return s.State
}

// BlocksOwner занимает ли слот время владельца при проверке пересечений
func (s *Slot) BlocksOwner(now time.Time) bool {
	return s.EffectiveState(now) != SlotStateCancelled
}

// Effective возвращает копию слота в том виде, в каком её видят читатели
func (s *Slot) Effective(now time.Time) *Slot {
	out := *s
	out.State = s.EffectiveState(now)
	return &out
}

// Clone возвращает независимую копию
func (s *Slot) Clone() *Slot {
	out := *s
	return &out
}

// SlotInput параметры нового слота
type SlotInput struct {
	OwnerID     string
	StartTime   time.Time
	EndTime     time.Time
	Subject     string
	SessionType string
	Location    Location
}

// SlotFilter фильтр выборки слотов. Пустые поля не ограничивают выборку.
// Диапазон From/To отбирает слоты, начинающиеся в [From, To).
type SlotFilter struct {
	OwnerID    string
	OccupantID string // студент, занявший или запросивший слот
	State      SlotState
	From       time.Time
	To         time.Time
}

// Matches проверяет слот по фильтру, состояние сравнивается эффективное
func (f SlotFilter) Matches(s *Slot, now time.Time) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if f.OccupantID != "" && s.OccupantID != f.OccupantID {
		return false
	}
	if f.State != "" && s.EffectiveState(now) != f.State {
		return false
	}
	if !f.From.IsZero() && s.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartTime.Before(f.To) {
		return false
	}
	return true
}

// BookingRequest запрос студента на запись, живёт только во время обработки
type BookingRequest struct {
	SlotID          string `json:"slot_id"`
	RequesterID     string `json:"requester_id"`
	ExpectedVersion int64  `json:"expected_version"` // 0 = версия, прочитанная координатором
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)
