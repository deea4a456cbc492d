package memory

import (
	"context"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

func (s *state) createSlot(slot *model.Slot) error {
	slot.ID = s.nextSlotID
	s.nextSlotID++
	slot.CreatedAt = now()
	slot.UpdatedAt = slot.CreatedAt
	s.slots[slot.ID] = cloneSlot(slot)
	return nil
}

func (s *state) slotByID(id int64) (*model.Slot, error) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSlot(slot), nil
}

func (s *state) slotAt(providerID int64, date, start string) (*model.Slot, error) {
	var found *model.Slot
	for _, slot := range s.slots {
		if slot.ProviderID != providerID || slot.Date != date || slot.StartTime != start {
			continue
		}
		if slot.Status == model.SlotStatusCancelled {
			continue
		}
		if found == nil || slot.CreatedAt.Before(found.CreatedAt) {
			found = slot
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSlot(found), nil
}

func (s *state) availableSlotAt(providerID int64, date, start string) (*model.Slot, error) {
	var found *model.Slot
	for _, slot := range s.slots {
		if providerID != model.AnyProvider && slot.ProviderID != providerID {
			continue
		}
		if slot.Date != date || slot.StartTime != start || slot.Status != model.SlotStatusAvailable {
			continue
		}
		if found == nil || slot.CreatedAt.Before(found.CreatedAt) ||
			(slot.CreatedAt.Equal(found.CreatedAt) && slot.ID < found.ID) {
			found = slot
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return cloneSlot(found), nil
}

func (s *state) slotsOnDate(providerID int64, date string) ([]*model.Slot, error) {
	var slots []*model.Slot
	for _, slot := range s.slots {
		if slot.ProviderID == providerID && slot.Date == date && slot.Status != model.SlotStatusCancelled {
			slots = append(slots, cloneSlot(slot))
		}
	}
	sortSlots(slots)
	return slots, nil
}

func (s *state) updateSlot(slot *model.Slot, expect model.SlotStatus) error {
	stored, ok := s.slots[slot.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Status != expect {
		return storage.ErrConflict
	}
	stored.RequesterID = nil
	stored.RequesterName = nil
	if slot.RequesterID != nil {
		v := *slot.RequesterID
		stored.RequesterID = &v
	}
	if slot.RequesterName != nil {
		v := *slot.RequesterName
		stored.RequesterName = &v
	}
	stored.Status = slot.Status
	stored.Notes = slot.Notes
	stored.UpdatedAt = now()
	slot.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *state) deleteSlot(id int64) error {
	if _, ok := s.slots[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.slots, id)
	return nil
}

func (s *state) listSlots(f storage.SlotFilter) ([]*model.Slot, error) {
	var slots []*model.Slot
	for _, slot := range s.slots {
		if f.ProviderID != 0 && slot.ProviderID != f.ProviderID {
			continue
		}
		if f.RequesterID != 0 && (slot.RequesterID == nil || *slot.RequesterID != f.RequesterID) {
			continue
		}
		if f.FromDate != "" && slot.Date < f.FromDate {
			continue
		}
		if f.ToDate != "" && slot.Date > f.ToDate {
			continue
		}
		if f.Status != "" && slot.Status != f.Status {
			continue
		}
		slots = append(slots, cloneSlot(slot))
	}
	sortSlots(slots)
	return slots, nil
}

// Locked wrappers.

func (s *Store) CreateSlot(_ context.Context, slot *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createSlot(slot)
}

func (s *Store) SlotByID(_ context.Context, id int64) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.slotByID(id)
}

func (s *Store) SlotAt(_ context.Context, providerID int64, date, start string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.slotAt(providerID, date, start)
}

func (s *Store) AvailableSlotAt(_ context.Context, providerID int64, date, start string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.availableSlotAt(providerID, date, start)
}

func (s *Store) SlotsOnDate(_ context.Context, providerID int64, date string) ([]*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.slotsOnDate(providerID, date)
}

func (s *Store) UpdateSlot(_ context.Context, slot *model.Slot, expect model.SlotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateSlot(slot, expect)
}

func (s *Store) DeleteSlot(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteSlot(id)
}

func (s *Store) ListSlots(_ context.Context, f storage.SlotFilter) ([]*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listSlots(f)
}

// Transaction-bound wrappers.

func (t *txStore) CreateSlot(_ context.Context, slot *model.Slot) error {
	return t.st.createSlot(slot)
}

func (t *txStore) SlotByID(_ context.Context, id int64) (*model.Slot, error) {
	return t.st.slotByID(id)
}

func (t *txStore) SlotAt(_ context.Context, providerID int64, date, start string) (*model.Slot, error) {
	return t.st.slotAt(providerID, date, start)
}

func (t *txStore) AvailableSlotAt(_ context.Context, providerID int64, date, start string) (*model.Slot, error) {
	return t.st.availableSlotAt(providerID, date, start)
}

func (t *txStore) SlotsOnDate(_ context.Context, providerID int64, date string) ([]*model.Slot, error) {
	return t.st.slotsOnDate(providerID, date)
}

func (t *txStore) UpdateSlot(_ context.Context, slot *model.Slot, expect model.SlotStatus) error {
	return t.st.updateSlot(slot, expect)
}

func (t *txStore) DeleteSlot(_ context.Context, id int64) error {
	return t.st.deleteSlot(id)
}

func (t *txStore) ListSlots(_ context.Context, f storage.SlotFilter) ([]*model.Slot, error) {
	return t.st.listSlots(f)
}
