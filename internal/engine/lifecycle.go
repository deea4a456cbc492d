package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/notify"
	"github.com/slotline/bookingd/internal/storage"
)

// Complete marks a booked slot completed. Only the bound provider, the
// bound requester or an admin may do so, and only once the slot's
// date+start is no longer in the future. Completing an already-completed
// slot is a conflict and re-fires no notifications.
func (e *Engine) Complete(ctx context.Context, actor model.Actor, slotID int64) (*model.Slot, error) {
	ref, err := e.store.SlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(ref.Key())
	defer unlock()

	var (
		result  *model.Slot
		pending []outbound
	)
	err = e.store.InTx(ctx, func(s storage.Store) error {
		slot, err := s.SlotByID(ctx, slotID)
		if err != nil {
			return err
		}
		if !canComplete(actor, slot) {
			return fmt.Errorf("actor %d cannot complete slot %d: %w", actor.ID, slot.ID, ErrUnauthorized)
		}
		if slot.Status == model.SlotStatusCompleted {
			return fmt.Errorf("slot %d is already completed: %w", slot.ID, storage.ErrConflict)
		}
		if slot.Status != model.SlotStatusBooked {
			return fmt.Errorf("only booked slots can be completed: %w", ErrValidation)
		}

		future, err := slot.StartsAfter(e.now())
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrValidation)
		}
		if future {
			return fmt.Errorf("slot %d has not started yet: %w", slot.ID, ErrValidation)
		}

		slot.Status = model.SlotStatusCompleted
		if err := s.UpdateSlot(ctx, slot, model.SlotStatusBooked); err != nil {
			return err
		}

		pending = append(pending, outbound{userID: slot.ProviderID, event: event(notify.EventSlotCompleted, slot.ID, 0, "appointment marked completed")})
		if slot.RequesterID != nil {
			pending = append(pending, outbound{userID: *slot.RequesterID, event: event(notify.EventSlotCompleted, slot.ID, 0, "appointment marked completed")})
		}
		result = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, pending)

	e.logger.Info("Slot completed",
		zap.Int64("slot_id", slotID),
		zap.Int64("actor_id", actor.ID),
	)
	return result, nil
}

// ListSlots applies the privacy boundary: providers see their own slots,
// requesters only slots bound to them, admins everything.
func (e *Engine) ListSlots(ctx context.Context, actor model.Actor, f storage.SlotFilter) ([]*model.Slot, error) {
	switch actor.Role {
	case model.RoleProvider:
		f.ProviderID = actor.ID
	case model.RoleRequester:
		f.RequesterID = actor.ID
	case model.RoleAdmin:
		// unrestricted, optional filters pass through
	default:
		return nil, fmt.Errorf("unknown role %q: %w", actor.Role, ErrUnauthorized)
	}
	return e.store.ListSlots(ctx, f)
}

// ListRequests returns a requester's own requests, or any requester's
// for admins.
func (e *Engine) ListRequests(ctx context.Context, actor model.Actor, f storage.RequestFilter) ([]*model.StudentRequest, error) {
	switch actor.Role {
	case model.RoleRequester:
		f.RequesterID = actor.ID
	case model.RoleAdmin:
	default:
		return nil, fmt.Errorf("role %q cannot list requests: %w", actor.Role, ErrUnauthorized)
	}
	return e.store.ListRequests(ctx, f)
}

func (e *Engine) GetRequest(ctx context.Context, actor model.Actor, id int64) (*model.StudentRequest, error) {
	req, err := e.store.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReadRequest(actor, req) {
		return nil, fmt.Errorf("actor %d cannot read request %d: %w", actor.ID, id, ErrUnauthorized)
	}
	return req, nil
}

// ExpireStale cancels waiting requests whose time point has passed
// unmet. Driven by the background sweeper. Returns the number of
// requests cancelled.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	date := now.Format(model.DateLayout)
	clock := now.Format(model.TimeLayout)

	var pending []outbound
	var expired int
	err := e.store.InTx(ctx, func(s storage.Store) error {
		stale, err := s.StaleWaiting(ctx, date, clock)
		if err != nil {
			return err
		}
		for _, req := range stale {
			req.Status = model.RequestStatusCancelled
			err := s.UpdateRequest(ctx, req, model.RequestStatusWaiting)
			if errors.Is(err, storage.ErrConflict) {
				// A concurrent assignment got the request first.
				continue
			}
			if err != nil {
				return err
			}
			pending = append(pending, outbound{userID: req.RequesterID, event: event(notify.EventRequestExpired, 0, req.ID, "your requested time passed without a matching slot")})
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.dispatch(ctx, pending)

	if expired > 0 {
		e.logger.Info("Expired stale waiting requests", zap.Int("count", expired))
	}
	return expired, nil
}
