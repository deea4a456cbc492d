// Package waitlist gives the waiting-request bucket explicit FIFO queue
// semantics: peek, assign-head, remove. It owns no state of its own;
// every call reads and writes through the store it was built on, so a
// queue built on a transaction-bound store commits atomically with the
// rest of the transaction.
package waitlist

import (
	"context"
	"fmt"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

type Queue struct {
	store storage.Store
}

func New(store storage.Store) *Queue {
	return &Queue{store: store}
}

// Entries returns the bucket in FIFO order.
func (q *Queue) Entries(ctx context.Context, key model.WaitKey) ([]*model.StudentRequest, error) {
	return q.store.WaitingBucket(ctx, key)
}

// Peek returns the bucket head, or nil when the bucket is empty.
func (q *Queue) Peek(ctx context.Context, key model.WaitKey) (*model.StudentRequest, error) {
	entries, err := q.store.WaitingBucket(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// Assign pops the bucket head and binds it to the slot: the head moves
// to assigned, every other entry in the bucket snapshot moves to
// cancelled (only one slot exists per time point). Returns the head and
// the displaced remainder, or a nil head when the bucket was empty.
func (q *Queue) Assign(ctx context.Context, key model.WaitKey, slotID int64) (*model.StudentRequest, []*model.StudentRequest, error) {
	entries, err := q.store.WaitingBucket(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, nil
	}

	head := entries[0]
	head.Status = model.RequestStatusAssigned
	head.AssignedSlotID = &slotID
	if err := q.store.UpdateRequest(ctx, head, model.RequestStatusWaiting); err != nil {
		return nil, nil, fmt.Errorf("assign bucket head %d: %w", head.ID, err)
	}

	displaced := entries[1:]
	for _, entry := range displaced {
		entry.Status = model.RequestStatusCancelled
		if err := q.store.UpdateRequest(ctx, entry, model.RequestStatusWaiting); err != nil {
			return nil, nil, fmt.Errorf("cancel displaced request %d: %w", entry.ID, err)
		}
	}

	return head, displaced, nil
}

// Remove marks a single waiting entry cancelled without touching the
// rest of its bucket.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	req, err := q.store.RequestByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != model.RequestStatusWaiting {
		return fmt.Errorf("request %d is not waiting: %w", id, storage.ErrConflict)
	}
	req.Status = model.RequestStatusCancelled
	return q.store.UpdateRequest(ctx, req, model.RequestStatusWaiting)
}
