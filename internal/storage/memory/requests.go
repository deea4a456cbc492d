package memory

import (
	"context"

	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

func (s *state) createRequest(req *model.StudentRequest) error {
	req.ID = s.nextRequestID
	s.nextRequestID++
	req.CreatedAt = now()
	req.UpdatedAt = req.CreatedAt
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *state) requestByID(id int64) (*model.StudentRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *state) waitingBucket(key model.WaitKey) ([]*model.StudentRequest, error) {
	var reqs []*model.StudentRequest
	for _, req := range s.requests {
		if req.Status != model.RequestStatusWaiting {
			continue
		}
		if req.RequestedDate == nil || *req.RequestedDate != key.Date {
			continue
		}
		if req.RequestedTime == nil || *req.RequestedTime != key.Start {
			continue
		}
		if req.WaitingForProvider {
			if key.ProviderID == model.AnyProvider {
				continue
			}
			if req.PreferredProviderID == nil || *req.PreferredProviderID != key.ProviderID {
				continue
			}
		}
		reqs = append(reqs, cloneRequest(req))
	}
	sortRequests(reqs)
	return reqs, nil
}

func (s *state) updateRequest(req *model.StudentRequest, expect model.RequestStatus) error {
	stored, ok := s.requests[req.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Status != expect {
		return storage.ErrConflict
	}
	cp := cloneRequest(req)
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = now()
	s.requests[req.ID] = cp
	req.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *state) listRequests(f storage.RequestFilter) ([]*model.StudentRequest, error) {
	var reqs []*model.StudentRequest
	for _, req := range s.requests {
		if f.RequesterID != 0 && req.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		reqs = append(reqs, cloneRequest(req))
	}
	sortRequests(reqs)
	return reqs, nil
}

func (s *state) staleWaiting(date, clock string) ([]*model.StudentRequest, error) {
	var reqs []*model.StudentRequest
	for _, req := range s.requests {
		if req.Status != model.RequestStatusWaiting {
			continue
		}
		if req.RequestedDate == nil || req.RequestedTime == nil {
			continue
		}
		if *req.RequestedDate < date || (*req.RequestedDate == date && *req.RequestedTime < clock) {
			reqs = append(reqs, cloneRequest(req))
		}
	}
	sortRequests(reqs)
	return reqs, nil
}

// Locked wrappers.

func (s *Store) CreateRequest(_ context.Context, req *model.StudentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createRequest(req)
}

func (s *Store) RequestByID(_ context.Context, id int64) (*model.StudentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.requestByID(id)
}

func (s *Store) WaitingBucket(_ context.Context, key model.WaitKey) ([]*model.StudentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.waitingBucket(key)
}

func (s *Store) UpdateRequest(_ context.Context, req *model.StudentRequest, expect model.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateRequest(req, expect)
}

func (s *Store) ListRequests(_ context.Context, f storage.RequestFilter) ([]*model.StudentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRequests(f)
}

func (s *Store) StaleWaiting(_ context.Context, date, clock string) ([]*model.StudentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.staleWaiting(date, clock)
}

// Transaction-bound wrappers.

func (t *txStore) CreateRequest(_ context.Context, req *model.StudentRequest) error {
	return t.st.createRequest(req)
}

func (t *txStore) RequestByID(_ context.Context, id int64) (*model.StudentRequest, error) {
	return t.st.requestByID(id)
}

func (t *txStore) WaitingBucket(_ context.Context, key model.WaitKey) ([]*model.StudentRequest, error) {
	return t.st.waitingBucket(key)
}

func (t *txStore) UpdateRequest(_ context.Context, req *model.StudentRequest, expect model.RequestStatus) error {
	return t.st.updateRequest(req, expect)
}

func (t *txStore) ListRequests(_ context.Context, f storage.RequestFilter) ([]*model.StudentRequest, error) {
	return t.st.listRequests(f)
}

func (t *txStore) StaleWaiting(_ context.Context, date, clock string) ([]*model.StudentRequest, error) {
	return t.st.staleWaiting(date, clock)
}
