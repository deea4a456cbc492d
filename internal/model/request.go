package model

import (
	"fmt"
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusWaiting   RequestStatus = "waiting"
	RequestStatusAssigned  RequestStatus = "assigned"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// StudentRequest is a requester's standing ask for an appointment. It is
// either resolved immediately against an available slot or parked in a
// waitlist bucket keyed by (provider-or-any, date, time).
type StudentRequest struct {
	ID                  int64         `json:"id"`
	RequesterID         int64         `json:"requester_id"`
	RequesterName       string        `json:"requester_name"`
	PreferredDays       []string      `json:"preferred_days"`
	PreferredTimes      []string      `json:"preferred_times"`
	PreferredProviderID *int64        `json:"preferred_provider_id"`
	RequestedDate       *string       `json:"requested_date"`
	RequestedTime       *string       `json:"requested_time"`
	WaitingForProvider  bool          `json:"waiting_for_provider"`
	Status              RequestStatus `json:"status"`
	AssignedSlotID      *int64        `json:"assigned_slot_id"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// WaitKey identifies one waitlist bucket and one unit of atomicity.
// ProviderID 0 means "any provider".
type WaitKey struct {
	ProviderID int64
	Date       string
	Start      string
}

// AnyProvider is the WaitKey provider id for requests with no provider preference.
const AnyProvider int64 = 0

func (k WaitKey) String() string {
	if k.ProviderID == AnyProvider {
		return fmt.Sprintf("any/%s/%s", k.Date, k.Start)
	}
	return fmt.Sprintf("%d/%s/%s", k.ProviderID, k.Date, k.Start)
}

// WaitKeyOf returns the bucket key a waiting request is parked under,
// or ok=false when the request carries no wait key.
func (r *StudentRequest) WaitKeyOf() (WaitKey, bool) {
	if r.RequestedDate == nil || r.RequestedTime == nil {
		return WaitKey{}, false
	}
	key := WaitKey{ProviderID: AnyProvider, Date: *r.RequestedDate, Start: *r.RequestedTime}
	if r.WaitingForProvider && r.PreferredProviderID != nil {
		key.ProviderID = *r.PreferredProviderID
	}
	return key, true
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ParseWeekday resolves a weekday name, case-insensitive.
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", name)
	}
	return d, nil
}

// NextOccurrence returns the next calendar date (in DateLayout form) that
// falls on the given weekday, counting from today when the weekday matches.
func NextOccurrence(from time.Time, day time.Weekday) string {
	delta := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta).Format(DateLayout)
}
