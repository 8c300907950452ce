package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

const slotColumns = `id, owner_id, start_time, end_time, subject, session_type, location, state, occupant_id, version, created_at, updated_at`

type SlotRepository struct {
	db *sql.DB
}

func NewSlotRepository(db *sql.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// CreateNonOverlapping проверяет пересечения и вставляет слот в одной транзакции
func (r *SlotRepository) CreateNonOverlapping(ctx context.Context, slot *model.Slot, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var conflictID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM slots
		WHERE owner_id = ?
		  AND start_time < ?
		  AND end_time > ?
		  AND state <> 'cancelled'
		  AND NOT (state = 'available' AND end_time <= ?)
		LIMIT 1
	`, slot.OwnerID, toMillis(slot.EndTime), toMillis(slot.StartTime), toMillis(now)).Scan(&conflictID)

	switch {
	case err == nil:
		return fmt.Errorf("create slot: %w (conflicts with %s)", model.ErrOverlapConflict, conflictID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check overlap: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		slot.ID,
		slot.OwnerID,
		toMillis(slot.StartTime),
		toMillis(slot.EndTime),
		slot.Subject,
		slot.SessionType,
		string(slot.Location),
		string(slot.State),
		nullString(slot.OccupantID),
		slot.Version,
		toMillis(slot.CreatedAt),
		toMillis(slot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	slot, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get slot %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}
	return slot, nil
}

// List получает слоты по фильтру
func (r *SlotRepository) List(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error) {
	var where []string
	var args []any

	if filter.OwnerID != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.OccupantID != "" {
		where = append(where, `occupant_id = ?`)
		args = append(args, filter.OccupantID)
	}
	if !filter.From.IsZero() {
		where = append(where, `start_time >= ?`)
		args = append(args, toMillis(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, `start_time < ?`)
		args = append(args, toMillis(filter.To))
	}
	switch filter.State {
	case "":
	case model.SlotStateAvailable:
		where = append(where, `state = 'available' AND end_time > ?`)
		args = append(args, toMillis(now))
	case model.SlotStateCancelled:
		where = append(where, `(state = 'cancelled' OR (state = 'available' AND end_time <= ?))`)
		args = append(args, toMillis(now))
	default:
		where = append(where, `state = ?`)
		args = append(args, string(filter.State))
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY start_time, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	return slots, nil
}

// CompareAndSwap обновляет слот, только если версия не изменилась
func (r *SlotRepository) CompareAndSwap(ctx context.Context, next *model.Slot, expectedVersion int64, expectedState model.SlotState) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE slots
		SET state = ?, occupant_id = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ? AND state = ?
	`,
		string(next.State),
		nullString(next.OccupantID),
		next.Version,
		toMillis(next.UpdatedAt),
		next.ID,
		expectedVersion,
		string(expectedState),
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var (
		version int64
		state   string
	)
	err = r.db.QueryRowContext(ctx, `SELECT version, state FROM slots WHERE id = ?`, next.ID).Scan(&version, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if version != expectedVersion {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrVersionConflict)
	}
	return fmt.Errorf("update slot %s: stored %s: %w", next.ID, state, model.ErrIllegalTransition)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*model.Slot, error) {
	var (
		slot                 model.Slot
		location, state      string
		occupant             sql.NullString
		start, end           int64
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&start,
		&end,
		&slot.Subject,
		&slot.SessionType,
		&location,
		&state,
		&occupant,
		&slot.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.StartTime = fromMillis(start)
	slot.EndTime = fromMillis(end)
	slot.CreatedAt = fromMillis(createdAt)
	slot.UpdatedAt = fromMillis(updatedAt)
	slot.Location = model.Location(location)
	slot.State = model.SlotState(state)
	slot.OccupantID = occupant.String

	return &slot, nil
}
