// Package storage defines the persistence contract the matching engine
// runs against. Implementations: postgres (production) and memory
// (tests, dev mode).
package storage

import (
	"context"
	"errors"

	"github.com/slotline/bookingd/internal/model"
)

var (
	// ErrNotFound reports an unknown slot or request id.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost compare-and-set race: the row's status
	// changed between read and write.
	ErrConflict = errors.New("conflict")
)

// SlotFilter narrows ListSlots. Zero values mean "no constraint".
type SlotFilter struct {
	ProviderID  int64
	RequesterID int64
	FromDate    string
	ToDate      string
	Status      model.SlotStatus
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	RequesterID int64
	Status      model.RequestStatus
}

// Store is the full persistence surface. All writes inside an InTx
// closure commit or roll back as one unit.
type Store interface {
	// CreateSlot inserts the slot and fills ID, CreatedAt and UpdatedAt.
	CreateSlot(ctx context.Context, slot *model.Slot) error
	// SlotByID returns ErrNotFound for unknown ids.
	SlotByID(ctx context.Context, id int64) (*model.Slot, error)
	// SlotAt returns the non-cancelled slot at an exact (provider, date,
	// start) point, or ErrNotFound.
	SlotAt(ctx context.Context, providerID int64, date, start string) (*model.Slot, error)
	// AvailableSlotAt is SlotAt restricted to status available;
	// providerID model.AnyProvider matches any provider, earliest
	// created slot wins.
	AvailableSlotAt(ctx context.Context, providerID int64, date, start string) (*model.Slot, error)
	// SlotsOnDate returns a provider's non-cancelled slots for one date,
	// ordered by start time. Used for overlap checks.
	SlotsOnDate(ctx context.Context, providerID int64, date string) ([]*model.Slot, error)
	// UpdateSlot compare-and-sets the slot: the write applies only while
	// the stored status still equals expect, otherwise ErrConflict.
	UpdateSlot(ctx context.Context, slot *model.Slot, expect model.SlotStatus) error
	// DeleteSlot hard-deletes the row. ErrNotFound when absent.
	DeleteSlot(ctx context.Context, id int64) error
	ListSlots(ctx context.Context, f SlotFilter) ([]*model.Slot, error)

	// CreateRequest inserts the request and fills ID, CreatedAt and UpdatedAt.
	CreateRequest(ctx context.Context, req *model.StudentRequest) error
	RequestByID(ctx context.Context, id int64) (*model.StudentRequest, error)
	// WaitingBucket returns waiting requests parked under the key,
	// strictly FIFO by created_at (insertion order breaks ties). A
	// provider-specific key also matches requests waiting on any
	// provider for the same date and time.
	WaitingBucket(ctx context.Context, key model.WaitKey) ([]*model.StudentRequest, error)
	// UpdateRequest compare-and-sets the request the same way UpdateSlot
	// does for slots: the write applies only while the stored status
	// still equals expect, otherwise ErrConflict.
	UpdateRequest(ctx context.Context, req *model.StudentRequest, expect model.RequestStatus) error
	ListRequests(ctx context.Context, f RequestFilter) ([]*model.StudentRequest, error)
	// StaleWaiting returns waiting requests whose wait key lies strictly
	// before the given date, or on it before the given clock time.
	StaleWaiting(ctx context.Context, date, clock string) ([]*model.StudentRequest, error)

	// InTx runs fn against a transaction-bound store.
	InTx(ctx context.Context, fn func(Store) error) error
}
