package engine

import "github.com/slotline/bookingd/internal/model"

// One pure predicate per operation; every handler path funnels through
// these instead of re-checking roles at each call site.

func canMarkAvailable(a model.Actor) bool {
	return a.IsProvider() || a.IsAdmin()
}

func canRequestSlot(a model.Actor) bool {
	return a.IsRequester()
}

func canCancelSlot(a model.Actor, s *model.Slot) bool {
	switch {
	case a.IsAdmin():
		return true
	case a.IsProvider():
		return s.ProviderID == a.ID
	case a.IsRequester():
		return s.RequesterID != nil && *s.RequesterID == a.ID
	}
	return false
}

// canComplete matches canCancelSlot: bound provider, bound requester or
// admin.
func canComplete(a model.Actor, s *model.Slot) bool {
	return canCancelSlot(a, s)
}

func canReadRequest(a model.Actor, r *model.StudentRequest) bool {
	return a.IsAdmin() || (a.IsRequester() && r.RequesterID == a.ID)
}
