package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

const requestColumns = `id, requester_id, requester_name, preferred_days, preferred_times,
			  preferred_provider_id, requested_date, requested_time,
			  waiting_for_provider, status, assigned_slot_id, created_at, updated_at`

func scanRequest(row pgx.Row) (*model.StudentRequest, error) {
	var r model.StudentRequest
	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&r.RequesterName,
		&r.PreferredDays,
		&r.PreferredTimes,
		&r.PreferredProviderID,
		&r.RequestedDate,
		&r.RequestedTime,
		&r.WaitingForProvider,
		&r.Status,
		&r.AssignedSlotID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (st *Store) CreateRequest(ctx context.Context, req *model.StudentRequest) error {
	query := `
		INSERT INTO student_requests (requester_id, requester_name, preferred_days, preferred_times,
		                              preferred_provider_id, requested_date, requested_time,
		                              waiting_for_provider, status, assigned_slot_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := st.db.QueryRow(
		ctx, query,
		req.RequesterID,
		req.RequesterName,
		req.PreferredDays,
		req.PreferredTimes,
		req.PreferredProviderID,
		req.RequestedDate,
		req.RequestedTime,
		req.WaitingForProvider,
		req.Status,
		req.AssignedSlotID,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (st *Store) RequestByID(ctx context.Context, id int64) (*model.StudentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM student_requests WHERE id = $1`

	req, err := scanRequest(st.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}
	return req, nil
}

// WaitingBucket returns the FIFO bucket for a key. A provider-specific
// key also picks up requests waiting on any provider for the same point
// in time; an any-provider key picks up only those.
func (st *Store) WaitingBucket(ctx context.Context, key model.WaitKey) ([]*model.StudentRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM student_requests
		WHERE status = 'waiting'
		  AND requested_date = $1
		  AND requested_time = $2
		  AND (NOT waiting_for_provider OR ($3 <> 0 AND preferred_provider_id = $3))
		ORDER BY created_at, id
	`

	rows, err := st.db.Query(ctx, query, key.Date, key.Start, key.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get waiting bucket: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (st *Store) UpdateRequest(ctx context.Context, req *model.StudentRequest, expect model.RequestStatus) error {
	query := `
		UPDATE student_requests
		SET requested_date = $1, requested_time = $2, waiting_for_provider = $3,
		    status = $4, assigned_slot_id = $5, updated_at = now()
		WHERE id = $6 AND status = $7
		RETURNING updated_at
	`

	err := st.db.QueryRow(
		ctx, query,
		req.RequestedDate,
		req.RequestedTime,
		req.WaitingForProvider,
		req.Status,
		req.AssignedSlotID,
		req.ID,
		expect,
	).Scan(&req.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := st.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM student_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check request exists: %w", err)
			}
			if !exists {
				return storage.ErrNotFound
			}
			return storage.ErrConflict
		}
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

func (st *Store) ListRequests(ctx context.Context, f storage.RequestFilter) ([]*model.StudentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM student_requests WHERE 1=1`
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}

	if f.RequesterID != 0 {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	query += " ORDER BY created_at, id"

	rows, err := st.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (st *Store) StaleWaiting(ctx context.Context, date, clock string) ([]*model.StudentRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM student_requests
		WHERE status = 'waiting'
		  AND (requested_date < $1 OR (requested_date = $1 AND requested_time < $2))
		ORDER BY created_at, id
	`

	rows, err := st.db.Query(ctx, query, date, clock)
	if err != nil {
		return nil, fmt.Errorf("get stale waiting: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

func collectRequests(rows pgx.Rows) ([]*model.StudentRequest, error) {
	var reqs []*model.StudentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return reqs, nil
}
