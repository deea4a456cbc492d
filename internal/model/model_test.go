package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	// 2024-05-01 is a Wednesday.
	wednesday := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		day  time.Weekday
		want string
	}{
		{time.Wednesday, "2024-05-01"}, // today counts
		{time.Thursday, "2024-05-02"},
		{time.Tuesday, "2024-05-07"}, // wraps the week
		{time.Sunday, "2024-05-05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextOccurrence(wednesday, tt.day), tt.day.String())
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("  friday ")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestWaitKeyOf(t *testing.T) {
	date, clock := "2024-05-01", "09:00"
	providerID := int64(10)

	r := &StudentRequest{RequestedDate: &date, RequestedTime: &clock}
	key, ok := r.WaitKeyOf()
	require.True(t, ok)
	assert.Equal(t, WaitKey{ProviderID: AnyProvider, Date: date, Start: clock}, key)

	r.WaitingForProvider = true
	r.PreferredProviderID = &providerID
	key, ok = r.WaitKeyOf()
	require.True(t, ok)
	assert.Equal(t, providerID, key.ProviderID)

	_, ok = (&StudentRequest{}).WaitKeyOf()
	assert.False(t, ok)
}

func TestSlotStartsAfter(t *testing.T) {
	slot := &Slot{Date: "2024-05-01", StartTime: "09:00"}

	future, err := slot.StartsAfter(time.Date(2024, 5, 1, 8, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, future)

	future, err = slot.StartsAfter(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, future)

	_, err = slot.StartsAfter(time.Time{})
	assert.NoError(t, err) // zero time is just very far in the past
}

func TestWeekdayOf(t *testing.T) {
	weekday, err := WeekdayOf("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "wednesday", weekday)

	_, err = WeekdayOf("01.05.2024")
	assert.Error(t, err)
}
