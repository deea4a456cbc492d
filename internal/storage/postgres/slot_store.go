package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

const slotColumns = `id, date, weekday, start_time, end_time, provider_id, provider_name,
		       requester_id, requester_name, status, notes, created_at, updated_at`

func scanSlot(row pgx.Row) (*model.Slot, error) {
	var s model.Slot
	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.Weekday,
		&s.StartTime,
		&s.EndTime,
		&s.ProviderID,
		&s.ProviderName,
		&s.RequesterID,
		&s.RequesterName,
		&s.Status,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *Store) CreateSlot(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (date, weekday, start_time, end_time, provider_id, provider_name,
		                   requester_id, requester_name, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := st.db.QueryRow(
		ctx, query,
		slot.Date,
		slot.Weekday,
		slot.StartTime,
		slot.EndTime,
		slot.ProviderID,
		slot.ProviderName,
		slot.RequesterID,
		slot.RequesterName,
		slot.Status,
		slot.Notes,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

func (st *Store) SlotByID(ctx context.Context, id int64) (*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	slot, err := scanSlot(st.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}
	return slot, nil
}

func (st *Store) SlotAt(ctx context.Context, providerID int64, date, start string) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE provider_id = $1 AND date = $2 AND start_time = $3 AND status <> 'cancelled'
		ORDER BY created_at
		LIMIT 1
	`

	slot, err := scanSlot(st.db.QueryRow(ctx, query, providerID, date, start))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get slot at: %w", err)
	}
	return slot, nil
}

func (st *Store) AvailableSlotAt(ctx context.Context, providerID int64, date, start string) (*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE ($1 = 0 OR provider_id = $1)
		  AND date = $2 AND start_time = $3 AND status = 'available'
		ORDER BY created_at
		LIMIT 1
	`

	slot, err := scanSlot(st.db.QueryRow(ctx, query, providerID, date, start))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get available slot: %w", err)
	}
	return slot, nil
}

func (st *Store) SlotsOnDate(ctx context.Context, providerID int64, date string) ([]*model.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		WHERE provider_id = $1 AND date = $2 AND status <> 'cancelled'
		ORDER BY start_time
	`

	rows, err := st.db.Query(ctx, query, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("get slots on date: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// UpdateSlot writes the mutable slot fields, but only while the stored
// status still equals expect. A raced-past writer gets ErrConflict.
func (st *Store) UpdateSlot(ctx context.Context, slot *model.Slot, expect model.SlotStatus) error {
	query := `
		UPDATE slots
		SET requester_id = $1, requester_name = $2, status = $3, notes = $4, updated_at = now()
		WHERE id = $5 AND status = $6
		RETURNING updated_at
	`

	err := st.db.QueryRow(
		ctx, query,
		slot.RequesterID,
		slot.RequesterName,
		slot.Status,
		slot.Notes,
		slot.ID,
		expect,
	).Scan(&slot.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := st.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, slot.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check slot exists: %w", err)
			}
			if !exists {
				return storage.ErrNotFound
			}
			return storage.ErrConflict
		}
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

func (st *Store) DeleteSlot(ctx context.Context, id int64) error {
	tag, err := st.db.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (st *Store) ListSlots(ctx context.Context, f storage.SlotFilter) ([]*model.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE 1=1`
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

	if f.ProviderID != 0 {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.RequesterID != 0 {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.FromDate != "" {
		add("date >= $%d", f.FromDate)
	}
	if f.ToDate != "" {
		add("date <= $%d", f.ToDate)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	query += " ORDER BY date, start_time, id"

	rows, err := st.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]*model.Slot, error) {
	var slots []*model.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}
