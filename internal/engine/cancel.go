package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/notify"
	"github.com/slotline/bookingd/internal/storage"
	"github.com/slotline/bookingd/internal/waitlist"
)

type CancelSlotInput struct {
	SlotID int64
	Reason string
	// Reassign controls whether a cancelled booking is handed to the
	// waitlist head. Defaults to true; only providers and admins may
	// turn it off.
	Reassign *bool
}

type CancelSlotResult struct {
	// Slot carries the post-cancellation state. For hard-deleted slots
	// it is a receipt with status removed.
	Slot *model.Slot
	// Removed is true when the record was hard-deleted.
	Removed bool
	// ReassignedTo is the waitlist head the slot was rebound to, if any.
	ReassignedTo *model.StudentRequest
}

// CancelSlot resolves a cancellation. Booked slots are reassigned to the
// FIFO waitlist head or released back to available; unbooked slots are
// hard-deleted by their provider or soft-cancelled by an admin.
func (e *Engine) CancelSlot(ctx context.Context, actor model.Actor, in CancelSlotInput) (*CancelSlotResult, error) {
	// First read is only to learn the lock key; state is re-read under
	// the lock.
	ref, err := e.store.SlotByID(ctx, in.SlotID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(ref.Key())
	defer unlock()

	var (
		res     CancelSlotResult
		pending []outbound
	)
	err = e.store.InTx(ctx, func(s storage.Store) error {
		slot, err := s.SlotByID(ctx, in.SlotID)
		if err != nil {
			return err
		}
		if !canCancelSlot(actor, slot) {
			return fmt.Errorf("actor %d cannot cancel slot %d: %w", actor.ID, slot.ID, ErrUnauthorized)
		}

		switch slot.Status {
		case model.SlotStatusBooked:
			pending, err = e.cancelBooked(ctx, s, actor, slot, in, &res)
			return err

		case model.SlotStatusAvailable:
			pending, err = e.cancelAvailable(ctx, s, actor, slot, &res)
			return err

		default:
			// Fallback for the remaining states.
			prev := slot.Status
			slot.Status = model.SlotStatusCancelled
			if err := s.UpdateSlot(ctx, slot, prev); err != nil {
				return err
			}
			res.Slot = slot
			pending, err = withdrawFanout(ctx, s, actor, slot)
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, pending)

	e.logger.Info("Slot cancelled",
		zap.Int64("slot_id", in.SlotID),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("reason", in.Reason),
		zap.Bool("removed", res.Removed),
		zap.Bool("reassigned", res.ReassignedTo != nil),
	)
	return &res, nil
}

// cancelBooked decides reassignment versus release. Requester-initiated
// cancellations always try the waitlist; providers and admins can opt
// out via the reassign flag.
func (e *Engine) cancelBooked(ctx context.Context, s storage.Store, actor model.Actor, slot *model.Slot, in CancelSlotInput, res *CancelSlotResult) ([]outbound, error) {
	reassign := in.Reassign == nil || *in.Reassign
	wantReassign := actor.IsRequester() || reassign

	displacedID := int64(0)
	if slot.RequesterID != nil {
		displacedID = *slot.RequesterID
	}

	key := slot.Key()
	q := waitlist.New(s)

	if wantReassign {
		head, displaced, err := q.Assign(ctx, key, slot.ID)
		if err != nil {
			return nil, err
		}
		if head != nil {
			slot.RequesterID = &head.RequesterID
			slot.RequesterName = &head.RequesterName
			if err := s.UpdateSlot(ctx, slot, model.SlotStatusBooked); err != nil {
				return nil, err
			}
			res.Slot = slot
			res.ReassignedTo = head

			pending := []outbound{
				{userID: head.RequesterID, event: event(notify.EventMatched, slot.ID, head.ID, "a cancellation freed your requested time, the slot is yours")},
				{userID: slot.ProviderID, event: event(notify.EventSlotCancelled, slot.ID, 0, "booking cancelled, slot rebound to the next waiting request")},
			}
			if displacedID != actor.ID {
				pending = append(pending, outbound{userID: displacedID, event: event(notify.EventBookingCancelled, slot.ID, 0, "your booking was cancelled")})
			}
			for _, d := range displaced {
				pending = append(pending, outbound{userID: d.RequesterID, event: event(notify.EventWaitCancelled, slot.ID, d.ID, "the slot for your requested time went to an earlier request")})
			}
			return pending, nil
		}
	}

	// Release: empty bucket or reassignment declined.
	slot.Status = model.SlotStatusAvailable
	slot.RequesterID = nil
	slot.RequesterName = nil
	if err := s.UpdateSlot(ctx, slot, model.SlotStatusBooked); err != nil {
		return nil, err
	}
	res.Slot = slot

	pending := []outbound{
		{userID: slot.ProviderID, event: event(notify.EventSlotCancelled, slot.ID, 0, "booking cancelled, slot is available again")},
	}
	if displacedID != actor.ID {
		pending = append(pending, outbound{userID: displacedID, event: event(notify.EventBookingCancelled, slot.ID, 0, "your booking was cancelled")})
	}

	// The bucket survives a release: entries keep their place.
	entries, err := q.Entries(ctx, key)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		pending = append(pending, outbound{userID: entry.RequesterID, event: event(notify.EventStillWaiting, slot.ID, entry.ID, "the slot for your requested time opened up again")})
	}
	return pending, nil
}

// cancelAvailable frees an unbooked slot: providers reclaim the time
// fully via hard delete, admins keep the row for audit.
func (e *Engine) cancelAvailable(ctx context.Context, s storage.Store, actor model.Actor, slot *model.Slot, res *CancelSlotResult) ([]outbound, error) {
	if actor.IsProvider() {
		if err := s.DeleteSlot(ctx, slot.ID); err != nil {
			return nil, err
		}
		slot.Status = model.SlotStatusRemoved
		res.Slot = slot
		res.Removed = true
		return withdrawFanout(ctx, s, actor, slot)
	}

	slot.Status = model.SlotStatusCancelled
	if err := s.UpdateSlot(ctx, slot, model.SlotStatusAvailable); err != nil {
		return nil, err
	}
	res.Slot = slot
	return withdrawFanout(ctx, s, actor, slot)
}

// withdrawFanout stages events for the provider (unless they are the
// actor) and for every entry still waiting on the slot's time point.
// The entries themselves stay in their bucket.
func withdrawFanout(ctx context.Context, s storage.Store, actor model.Actor, slot *model.Slot) ([]outbound, error) {
	var pending []outbound
	if slot.ProviderID != actor.ID {
		pending = append(pending, outbound{userID: slot.ProviderID, event: event(notify.EventSlotCancelled, slot.ID, 0, "your slot was cancelled")})
	}

	entries, err := waitlist.New(s).Entries(ctx, slot.Key())
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		pending = append(pending, outbound{userID: entry.RequesterID, event: event(notify.EventSlotCancelled, slot.ID, entry.ID, "the slot at your requested time was withdrawn, you keep your place in line")})
	}
	return pending, nil
}
