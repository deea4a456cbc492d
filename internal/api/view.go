package api

import (
	"sort"

	"github.com/slotline/bookingd/internal/model"
)

// VirtualStatus is the status shown for non-persisted entries
// synthesized from waiting requests.
const VirtualStatus = "waitlisted"

// SlotView is the calendar projection returned to requesters: real
// slots bound to them merged with virtual entries for their waiting
// requests, for calendar continuity.
type SlotView struct {
	ID           int64  `json:"id,omitempty"`
	Date         string `json:"date"`
	Weekday      string `json:"weekday,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
	ProviderID   int64  `json:"provider_id,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	Virtual      bool   `json:"virtual"`
	RequestID    int64  `json:"request_id,omitempty"`
}

func slotView(s *model.Slot) SlotView {
	return SlotView{
		ID:           s.ID,
		Date:         s.Date,
		Weekday:      s.Weekday,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		ProviderID:   s.ProviderID,
		ProviderName: s.ProviderName,
		Status:       string(s.Status),
		Notes:        s.Notes,
	}
}

func virtualView(r *model.StudentRequest) (SlotView, bool) {
	key, ok := r.WaitKeyOf()
	if !ok {
		return SlotView{}, false
	}
	v := SlotView{
		Date:      key.Date,
		StartTime: key.Start,
		Status:    VirtualStatus,
		Virtual:   true,
		RequestID: r.ID,
	}
	if weekday, err := model.WeekdayOf(key.Date); err == nil {
		v.Weekday = weekday
	}
	if r.WaitingForProvider && r.PreferredProviderID != nil {
		v.ProviderID = *r.PreferredProviderID
	}
	return v, true
}

// BuildCalendar merges real slots with virtual waitlist entries, sorted
// by (date, start_time). Virtual entries outside [from, to] are dropped
// so a ranged listing stays ranged; an empty bound leaves that side
// open.
func BuildCalendar(slots []*model.Slot, waiting []*model.StudentRequest, from, to string) []SlotView {
	views := make([]SlotView, 0, len(slots)+len(waiting))
	for _, s := range slots {
		views = append(views, slotView(s))
	}
	for _, r := range waiting {
		v, ok := virtualView(r)
		if !ok {
			continue
		}
		if from != "" && v.Date < from {
			continue
		}
		if to != "" && v.Date > to {
			continue
		}
		views = append(views, v)
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Date != views[j].Date {
			return views[i].Date < views[j].Date
		}
		return views[i].StartTime < views[j].StartTime
	})
	return views
}
