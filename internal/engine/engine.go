// Package engine implements the slot matching and waitlist-reassignment
// core: availability submissions, request resolution, cancellation with
// FIFO reassignment, and completion.
//
// Every mutating operation serializes on the (provider, date, start)
// tuple it touches, commits all writes in one storage transaction, and
// only then dispatches notifications fire-and-forget.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/notify"
	"github.com/slotline/bookingd/internal/storage"
	"github.com/slotline/bookingd/internal/waitlist"
)

type Engine struct {
	store      storage.Store
	dispatcher notify.Dispatcher
	logger     *zap.Logger
	locks      *keyLocks
	now        func() time.Time
}

func New(store storage.Store, dispatcher notify.Dispatcher, logger *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		locks:      newKeyLocks(),
		now:        time.Now,
	}
}

// outbound is a notification staged during a transaction and delivered
// only after commit.
type outbound struct {
	userID int64
	event  notify.Event
}

// dispatch delivers staged notifications. Failures are logged and
// swallowed; entries without a user id are skipped silently.
func (e *Engine) dispatch(ctx context.Context, pending []outbound) {
	for _, o := range pending {
		if o.userID == 0 {
			continue
		}
		if err := e.dispatcher.Notify(ctx, o.userID, o.event); err != nil {
			e.logger.Warn("Notification dispatch failed",
				zap.Int64("user_id", o.userID),
				zap.String("type", string(o.event.Type)),
				zap.Error(err),
			)
		}
	}
}

func event(t notify.EventType, slotID, requestID int64, msg string) notify.Event {
	ev := notify.NewEvent(t)
	ev.SlotID = slotID
	ev.RequestID = requestID
	ev.Message = msg
	return ev
}

type MarkAvailableInput struct {
	Date         string
	StartTime    string
	EndTime      string
	ProviderID   int64  // required for admins, defaults to the actor for providers
	ProviderName string // defaults to the actor's name
	Notes        string
}

type MarkAvailableResult struct {
	Slot *model.Slot
	// AssignedRequest is set when the submission immediately satisfied a
	// waiting request and the slot was created booked.
	AssignedRequest *model.StudentRequest
}

// MarkAvailable records a provider's availability. When the waitlist
// bucket for the exact time point is non-empty the slot is created
// directly booked to the bucket head; otherwise it is created available.
func (e *Engine) MarkAvailable(ctx context.Context, actor model.Actor, in MarkAvailableInput) (*MarkAvailableResult, error) {
	if !canMarkAvailable(actor) {
		return nil, fmt.Errorf("only providers can submit availability: %w", ErrUnauthorized)
	}

	providerID := in.ProviderID
	if actor.IsProvider() {
		if providerID != 0 && providerID != actor.ID {
			return nil, fmt.Errorf("providers can only submit their own availability: %w", ErrUnauthorized)
		}
		providerID = actor.ID
	}
	if providerID == 0 {
		return nil, fmt.Errorf("provider_id is required: %w", ErrValidation)
	}

	providerName := in.ProviderName
	if providerName == "" && actor.IsProvider() {
		providerName = actor.Name
	}

	if _, err := model.ParseDate(in.Date); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if err := model.ParseClock(in.StartTime); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if err := model.ParseClock(in.EndTime); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	if in.EndTime <= in.StartTime {
		return nil, fmt.Errorf("end_time must be after start_time: %w", ErrValidation)
	}
	weekday, err := model.WeekdayOf(in.Date)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}

	key := model.WaitKey{ProviderID: providerID, Date: in.Date, Start: in.StartTime}
	unlock := e.locks.Lock(key)
	defer unlock()

	var (
		res     MarkAvailableResult
		pending []outbound
	)
	err = e.store.InTx(ctx, func(s storage.Store) error {
		existing, err := s.SlotsOnDate(ctx, providerID, in.Date)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		for _, other := range existing {
			if in.StartTime < other.EndTime && other.StartTime < in.EndTime {
				return fmt.Errorf("interval overlaps slot %d: %w", other.ID, storage.ErrConflict)
			}
		}

		slot := &model.Slot{
			Date:         in.Date,
			Weekday:      weekday,
			StartTime:    in.StartTime,
			EndTime:      in.EndTime,
			ProviderID:   providerID,
			ProviderName: providerName,
			Status:       model.SlotStatusAvailable,
			Notes:        in.Notes,
		}

		q := waitlist.New(s)
		head, err := q.Peek(ctx, key)
		if err != nil {
			return fmt.Errorf("peek waitlist: %w", err)
		}

		if head != nil {
			slot.Status = model.SlotStatusBooked
			slot.RequesterID = &head.RequesterID
			slot.RequesterName = &head.RequesterName
		}
		if err := s.CreateSlot(ctx, slot); err != nil {
			return err
		}

		if head != nil {
			assigned, displaced, err := q.Assign(ctx, key, slot.ID)
			if err != nil {
				return err
			}
			res.AssignedRequest = assigned
			pending = append(pending, outbound{
				userID: assigned.RequesterID,
				event:  event(notify.EventMatched, slot.ID, assigned.ID, "a slot matching your request is now booked for you"),
			})
			for _, d := range displaced {
				pending = append(pending, outbound{
					userID: d.RequesterID,
					event:  event(notify.EventQueueMateTook, slot.ID, d.ID, "the slot for your requested time went to an earlier request"),
				})
			}
		}

		res.Slot = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, pending)

	e.logger.Info("Availability submitted",
		zap.Int64("slot_id", res.Slot.ID),
		zap.Int64("provider_id", providerID),
		zap.String("date", in.Date),
		zap.String("start_time", in.StartTime),
		zap.String("status", string(res.Slot.Status)),
	)
	return &res, nil
}
