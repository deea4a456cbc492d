// Package notify is the boundary to the external notification-delivery
// system. The engine emits events after commit, at-most-effort: a
// failing dispatcher is logged and swallowed, never propagated.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	// EventMatched: a request got bound to a slot.
	EventMatched EventType = "matched"
	// EventQueueMateTook: the only slot for the bucket's time point went
	// to an earlier queue-mate.
	EventQueueMateTook EventType = "taken_by_queue_mate"
	// EventStillWaiting: the bucket survived a cancellation, the entry
	// keeps its place.
	EventStillWaiting EventType = "still_waiting"
	// EventWaitCancelled: the waitlist entry was cancelled.
	EventWaitCancelled EventType = "wait_cancelled"
	// EventBookingCancelled: the requester lost a booked slot.
	EventBookingCancelled EventType = "booking_cancelled"
	// EventSlotCancelled: the provider's slot was cancelled or rebound.
	EventSlotCancelled EventType = "slot_cancelled"
	// EventRequestExpired: a waiting request's time point passed unmet.
	EventRequestExpired EventType = "request_expired"
	// EventSlotCompleted: the appointment was held and marked completed.
	EventSlotCompleted EventType = "slot_completed"
)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SlotID    int64     `json:"slot_id,omitempty"`
	RequestID int64     `json:"request_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType) Event {
	return Event{ID: uuid.New().String(), Type: t, At: time.Now()}
}

// Dispatcher delivers one event to one user. No ack or retry contract.
type Dispatcher interface {
	Notify(ctx context.Context, userID int64, event Event) error
}

// ZapDispatcher logs events instead of delivering them; the default
// backend when no push transport is wired.
type ZapDispatcher struct {
	logger *zap.Logger
}

func NewZapDispatcher(logger *zap.Logger) *ZapDispatcher {
	return &ZapDispatcher{logger: logger}
}

func (d *ZapDispatcher) Notify(_ context.Context, userID int64, event Event) error {
	d.logger.Info("Notification",
		zap.Int64("user_id", userID),
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("slot_id", event.SlotID),
		zap.Int64("request_id", event.RequestID),
	)
	return nil
}

// Recorder captures events for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	UserID int64
	Event  Event
}

func (r *Recorder) Notify(_ context.Context, userID int64, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{UserID: userID, Event: event})
	return nil
}

// ByType returns recorded events of one type.
func (r *Recorder) ByType(t EventType) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, rec := range r.Events {
		if rec.Event.Type == t {
			out = append(out, rec)
		}
	}
	return out
}
