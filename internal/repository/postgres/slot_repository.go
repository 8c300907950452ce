package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
)

const slotColumns = `id, owner_id, start_time, end_time, subject, session_type, location, state, occupant_id, version, created_at, updated_at`

type SlotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// CreateNonOverlapping создаёт слот, если у владельца нет пересекающихся слотов.
// Проверка и вставка идут в одной транзакции под advisory lock владельца.
func (r *SlotRepository) CreateNonOverlapping(ctx context.Context, slot *model.Slot, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.OwnerID); err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}

	var conflictID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM slots
		WHERE owner_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND state <> 'cancelled'
		  AND NOT (state = 'available' AND end_time <= $4)
		LIMIT 1
	`, slot.OwnerID, slot.StartTime, slot.EndTime, now).Scan(&conflictID)

	switch {
	case err == nil:
		return fmt.Errorf("create slot: %w (conflicts with %s)", model.ErrOverlapConflict, conflictID)
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("check overlap: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		slot.ID,
		slot.OwnerID,
		slot.StartTime,
		slot.EndTime,
		slot.Subject,
		slot.SessionType,
		slot.Location,
		slot.State,
		nullString(slot.OccupantID),
		slot.Version,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get slot %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// List получает слоты по фильтру, состояние сравнивается с учётом истечения
func (r *SlotRepository) List(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE TRUE`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.OwnerID != "" {
		query += ` AND owner_id = ` + arg(filter.OwnerID)
	}
	if filter.OccupantID != "" {
		query += ` AND occupant_id = ` + arg(filter.OccupantID)
	}
	if !filter.From.IsZero() {
		query += ` AND start_time >= ` + arg(filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND start_time < ` + arg(filter.To)
	}
	switch filter.State {
	case "":
	case model.SlotStateAvailable:
		query += ` AND state = 'available' AND end_time > ` + arg(now)
	case model.SlotStateCancelled:
		query += ` AND (state = 'cancelled' OR (state = 'available' AND end_time <= ` + arg(now) + `))`
	default:
		query += ` AND state = ` + arg(filter.State)
	}
	query += ` ORDER BY start_time, id`

	rows, err := r.pool.Query(ctx, query, args...)
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
	query := `
		UPDATE slots
		SET state = $1, occupant_id = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6 AND state = $7
	`

	result, err := r.pool.Exec(ctx, query,
		next.State,
		nullString(next.OccupantID),
		next.Version,
		next.UpdatedAt,
		next.ID,
		expectedVersion,
		expectedState,
	)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	if result.RowsAffected() == 1 {
		return nil
	}

	// Ничего не обновили: слота нет, версия устарела или истечение уже записано
	var (
		version int64
		state   model.SlotState
	)
	err = r.pool.QueryRow(ctx, `SELECT version, state FROM slots WHERE id = $1`, next.ID).Scan(&version, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update slot %s: %w", next.ID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	return casConflict(next.ID, version, state, expectedVersion)
}

// casConflict объясняет, почему CAS не прошёл
func casConflict(id string, version int64, state model.SlotState, expectedVersion int64) error {
	if version != expectedVersion {
		return fmt.Errorf("update slot %s: %w", id, model.ErrVersionConflict)
	}
	return fmt.Errorf("update slot %s: stored %s: %w", id, state, model.ErrIllegalTransition)
}

func scanSlot(row pgx.Row) (*model.Slot, error) {
	var slot model.Slot
	var occupant *string

	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Subject,
		&slot.SessionType,
		&slot.Location,
		&slot.State,
		&occupant,
		&slot.Version,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if occupant != nil {
		slot.OccupantID = *occupant
	}
	return &slot, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
