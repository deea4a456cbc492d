package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

type MatchStatus string

const (
	MatchStatusMatched          MatchStatus = "matched"
	MatchStatusWaiting          MatchStatus = "waiting"
	MatchStatusRejected         MatchStatus = "rejected"
	MatchStatusAlternateOffered MatchStatus = "alternate_offered"
)

type RequestSlotInput struct {
	PreferredDays       []string
	PreferredTimes      []string
	PreferredProviderID *int64
	// Date and Time select the exact-target path when both are set
	// together with PreferredProviderID.
	Date *string
	Time *string
}

type RequestSlotResult struct {
	Request     *model.StudentRequest
	MatchStatus MatchStatus
	Slot        *model.Slot
}

// RequestSlot resolves a requester's ask. Three paths, in order: exact
// target, preference-list search against the preferred provider, and
// any-provider fallback. An unresolvable ask is parked as a waiting
// request keyed by the first unmatched preference pair.
func (e *Engine) RequestSlot(ctx context.Context, actor model.Actor, in RequestSlotInput) (*RequestSlotResult, error) {
	if !canRequestSlot(actor) {
		return nil, fmt.Errorf("only requesters can submit slot requests: %w", ErrUnauthorized)
	}

	if in.Date != nil || in.Time != nil {
		if in.Date == nil || in.Time == nil || in.PreferredProviderID == nil {
			return nil, fmt.Errorf("exact requests need date, time and provider: %w", ErrValidation)
		}
		if _, err := model.ParseDate(*in.Date); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
		if err := model.ParseClock(*in.Time); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
		return e.requestExact(ctx, actor, in)
	}

	if len(in.PreferredDays) == 0 || len(in.PreferredTimes) == 0 {
		return nil, fmt.Errorf("preferred days and times are required: %w", ErrValidation)
	}
	for _, day := range in.PreferredDays {
		if _, err := model.ParseWeekday(day); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
	}
	for _, clock := range in.PreferredTimes {
		if err := model.ParseClock(clock); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
	}
	return e.requestByPreference(ctx, actor, in)
}

// requestExact handles the date+time+provider path. Exact-target
// saturation rejects immediately, it is never silently waitlisted.
func (e *Engine) requestExact(ctx context.Context, actor model.Actor, in RequestSlotInput) (*RequestSlotResult, error) {
	providerID := *in.PreferredProviderID
	key := model.WaitKey{ProviderID: providerID, Date: *in.Date, Start: *in.Time}

	unlock := e.locks.Lock(key)
	defer unlock()

	var res RequestSlotResult
	err := e.store.InTx(ctx, func(s storage.Store) error {
		req := e.newRequest(actor, in)

		slot, err := s.SlotAt(ctx, providerID, *in.Date, *in.Time)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// No such slot yet: park in the exact bucket.
			req.Status = model.RequestStatusWaiting
			req.RequestedDate = in.Date
			req.RequestedTime = in.Time
			req.WaitingForProvider = true
			res.MatchStatus = MatchStatusWaiting

		case err != nil:
			return err

		case slot.Status == model.SlotStatusAvailable:
			if err := e.bindSlot(ctx, s, slot, req); err != nil {
				return err
			}
			if err := e.createBound(ctx, s, req, slot); err != nil {
				return err
			}
			res.MatchStatus = MatchStatusMatched
			res.Slot = slot
			res.Request = req
			return nil

		default:
			// Already bound to someone else.
			req.Status = model.RequestStatusRejected
			res.MatchStatus = MatchStatusRejected
		}

		if err := s.CreateRequest(ctx, req); err != nil {
			return err
		}
		res.Request = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logRequest(&res, actor)
	return &res, nil
}

// requestByPreference walks the days × times preference grid, first
// against the preferred provider, then against any provider, and parks
// the request under the first pair when nothing matches.
func (e *Engine) requestByPreference(ctx context.Context, actor model.Actor, in RequestSlotInput) (*RequestSlotResult, error) {
	searchProvider := model.AnyProvider
	if in.PreferredProviderID != nil {
		searchProvider = *in.PreferredProviderID
	}

	res, err := e.bookFirstHit(ctx, actor, in, searchProvider, MatchStatusMatched)
	if err != nil || res != nil {
		return res, err
	}

	// Alternate-provider fallback only applies when a preference existed
	// to fall back from.
	if in.PreferredProviderID != nil {
		res, err = e.bookFirstHit(ctx, actor, in, model.AnyProvider, MatchStatusAlternateOffered)
		if err != nil || res != nil {
			return res, err
		}
	}

	return e.parkWaiting(ctx, actor, in)
}

// bookFirstHit books the first available slot matching any (day, time)
// pair, or returns nil when the whole grid misses.
func (e *Engine) bookFirstHit(ctx context.Context, actor model.Actor, in RequestSlotInput, providerID int64, status MatchStatus) (*RequestSlotResult, error) {
	for _, day := range in.PreferredDays {
		weekday, err := model.ParseWeekday(day)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrValidation)
		}
		date := model.NextOccurrence(e.now(), weekday)

		for _, clock := range in.PreferredTimes {
			res, err := e.tryBookAt(ctx, actor, in, providerID, date, clock, status)
			if err != nil {
				return nil, err
			}
			if res != nil {
				e.logRequest(res, actor)
				return res, nil
			}
		}
	}
	return nil, nil
}

// tryBookAt attempts to book the available slot at one time point under
// that point's lock. A miss returns (nil, nil).
func (e *Engine) tryBookAt(ctx context.Context, actor model.Actor, in RequestSlotInput, providerID int64, date, clock string, status MatchStatus) (*RequestSlotResult, error) {
	unlock := e.locks.Lock(model.WaitKey{ProviderID: providerID, Date: date, Start: clock})
	defer unlock()

	var res *RequestSlotResult
	err := e.store.InTx(ctx, func(s storage.Store) error {
		slot, err := s.AvailableSlotAt(ctx, providerID, date, clock)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		req := e.newRequest(actor, in)
		if err := e.bindSlot(ctx, s, slot, req); err != nil {
			return err
		}
		if err := e.createBound(ctx, s, req, slot); err != nil {
			return err
		}
		res = &RequestSlotResult{Request: req, MatchStatus: status, Slot: slot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// parkWaiting persists the request as waiting. Only the first preference
// pair becomes the wait key; later pairs are kept on the record but are
// not separately tracked.
func (e *Engine) parkWaiting(ctx context.Context, actor model.Actor, in RequestSlotInput) (*RequestSlotResult, error) {
	weekday, err := model.ParseWeekday(in.PreferredDays[0])
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	date := model.NextOccurrence(e.now(), weekday)
	clock := in.PreferredTimes[0]

	key := model.WaitKey{ProviderID: model.AnyProvider, Date: date, Start: clock}
	if in.PreferredProviderID != nil {
		key.ProviderID = *in.PreferredProviderID
	}
	unlock := e.locks.Lock(key)
	defer unlock()

	req := e.newRequest(actor, in)
	req.Status = model.RequestStatusWaiting
	req.RequestedDate = &date
	req.RequestedTime = &clock
	req.WaitingForProvider = in.PreferredProviderID != nil

	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	res := &RequestSlotResult{Request: req, MatchStatus: MatchStatusWaiting}
	e.logRequest(res, actor)
	return res, nil
}

func (e *Engine) newRequest(actor model.Actor, in RequestSlotInput) *model.StudentRequest {
	return &model.StudentRequest{
		RequesterID:         actor.ID,
		RequesterName:       actor.Name,
		PreferredDays:       in.PreferredDays,
		PreferredTimes:      in.PreferredTimes,
		PreferredProviderID: in.PreferredProviderID,
		Status:              model.RequestStatusPending,
	}
}

// bindSlot compare-and-sets an available slot to booked for the
// requester. A concurrent writer that got there first surfaces as
// storage.ErrConflict.
func (e *Engine) bindSlot(ctx context.Context, s storage.Store, slot *model.Slot, req *model.StudentRequest) error {
	slot.Status = model.SlotStatusBooked
	slot.RequesterID = &req.RequesterID
	slot.RequesterName = &req.RequesterName
	if err := s.UpdateSlot(ctx, slot, model.SlotStatusAvailable); err != nil {
		return fmt.Errorf("book slot %d: %w", slot.ID, err)
	}
	return nil
}

func (e *Engine) createBound(ctx context.Context, s storage.Store, req *model.StudentRequest, slot *model.Slot) error {
	req.Status = model.RequestStatusAssigned
	req.AssignedSlotID = &slot.ID
	return s.CreateRequest(ctx, req)
}

func (e *Engine) logRequest(res *RequestSlotResult, actor model.Actor) {
	fields := []zap.Field{
		zap.Int64("request_id", res.Request.ID),
		zap.Int64("requester_id", actor.ID),
		zap.String("match_status", string(res.MatchStatus)),
	}
	if res.Slot != nil {
		fields = append(fields, zap.Int64("slot_id", res.Slot.ID))
	}
	e.logger.Info("Slot request resolved", fields...)
}
