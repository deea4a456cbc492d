package model

import (
	"fmt"
	"time"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCancelled SlotStatus = "cancelled"
	SlotStatusCompleted SlotStatus = "completed"
	// SlotStatusRemoved is a receipt status for hard-deleted slots,
	// it is never written to storage.
	SlotStatusRemoved SlotStatus = "removed"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Slot struct {
	ID            int64      `json:"id"`
	Date          string     `json:"date"`
	Weekday       string     `json:"weekday"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	ProviderID    int64      `json:"provider_id"`
	ProviderName  string     `json:"provider_name"`
	RequesterID   *int64     `json:"requester_id"`
	RequesterName *string    `json:"requester_name"`
	Status        SlotStatus `json:"status"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Key returns the atomicity unit the slot belongs to.
func (s *Slot) Key() WaitKey {
	return WaitKey{ProviderID: s.ProviderID, Date: s.Date, Start: s.StartTime}
}

// StartsAfter reports whether the slot begins after the given instant.
func (s *Slot) StartsAfter(now time.Time) (bool, error) {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.StartTime, now.Location())
	if err != nil {
		return false, fmt.Errorf("parse slot start: %w", err)
	}
	return start.After(now), nil
}

// ParseDate validates a calendar date in DateLayout form.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// ParseClock validates a wall-clock time in TimeLayout form.
func ParseClock(clock string) error {
	if _, err := time.Parse(TimeLayout, clock); err != nil {
		return fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return nil
}

// WeekdayOf returns the lowercase weekday name of a DateLayout date.
func WeekdayOf(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return weekdayName(t.Weekday()), nil
}
