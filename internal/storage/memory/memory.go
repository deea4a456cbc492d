// Package memory is an in-memory storage.Store. It backs the engine
// tests and the STORE=memory development mode; semantics mirror the
// postgres store, including compare-and-set conflicts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

type state struct {
	slots    map[int64]*model.Slot
	requests map[int64]*model.StudentRequest

	nextSlotID    int64
	nextRequestID int64
}

type Store struct {
	mu sync.Mutex
	st state
}

func New() *Store {
	return &Store{st: state{
		slots:         make(map[int64]*model.Slot),
		requests:      make(map[int64]*model.StudentRequest),
		nextSlotID:    1,
		nextRequestID: 1,
	}}
}

// InTx serializes the closure under the store lock and rolls the state
// back when fn fails, so multi-write operations stay atomic like their
// postgres counterparts.
func (s *Store) InTx(_ context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txStore{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// txStore exposes the state without locking; it only ever runs inside
// the InTx critical section.
type txStore struct {
	st *state
}

func (t *txStore) InTx(_ context.Context, fn func(storage.Store) error) error {
	return fn(t)
}

func (s *state) clone() state {
	cp := state{
		slots:         make(map[int64]*model.Slot, len(s.slots)),
		requests:      make(map[int64]*model.StudentRequest, len(s.requests)),
		nextSlotID:    s.nextSlotID,
		nextRequestID: s.nextRequestID,
	}
	for id, slot := range s.slots {
		cp.slots[id] = cloneSlot(slot)
	}
	for id, req := range s.requests {
		cp.requests[id] = cloneRequest(req)
	}
	return cp
}

func cloneSlot(s *model.Slot) *model.Slot {
	cp := *s
	if s.RequesterID != nil {
		v := *s.RequesterID
		cp.RequesterID = &v
	}
	if s.RequesterName != nil {
		v := *s.RequesterName
		cp.RequesterName = &v
	}
	return &cp
}

func cloneRequest(r *model.StudentRequest) *model.StudentRequest {
	cp := *r
	cp.PreferredDays = append([]string(nil), r.PreferredDays...)
	cp.PreferredTimes = append([]string(nil), r.PreferredTimes...)
	if r.PreferredProviderID != nil {
		v := *r.PreferredProviderID
		cp.PreferredProviderID = &v
	}
	if r.RequestedDate != nil {
		v := *r.RequestedDate
		cp.RequestedDate = &v
	}
	if r.RequestedTime != nil {
		v := *r.RequestedTime
		cp.RequestedTime = &v
	}
	if r.AssignedSlotID != nil {
		v := *r.AssignedSlotID
		cp.AssignedSlotID = &v
	}
	return &cp
}

// sortSlots orders by (date, start, id), the postgres list order.
func sortSlots(slots []*model.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// sortRequests orders FIFO: created_at, insertion id breaking ties.
func sortRequests(reqs []*model.StudentRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// now is stubbed in tests that need deterministic created_at ordering.
var now = time.Now
