// Package booking implements the booking wizard and the availability engine
// that keeps a per-space snapshot fresh while a user picks a space.
package booking

import (
	"fmt"
	"time"

	"github.com/pconnect/portal/internal/models"
)

// DateLayout is the wire format for booking dates.
const DateLayout = "2006-01-02"

// Booking window, in calendar days after today.
const (
	minDaysAhead = 1
	maxDaysAhead = 2
)

// Clock returns the current time.
type Clock func() time.Time

// Draft is the unsaved selection the wizard accumulates.
type Draft struct {
	BuildingID   string           `json:"building_id,omitempty"`
	BuildingName string           `json:"building_name,omitempty"`
	Floor        string           `json:"floor,omitempty"`
	SpaceType    models.SpaceType `json:"space_type,omitempty"`
	Date         string           `json:"date,omitempty"`
	StartTime    string           `json:"start_time,omitempty"`
	EndTime      string           `json:"end_time,omitempty"`
}

// IsMeetingRoom reports whether the draft books a meeting room.
func (d Draft) IsMeetingRoom() bool {
	return d.SpaceType == models.SpaceMeetingRoom
}

// HasTimes reports whether both times are set.
func (d Draft) HasTimes() bool {
	return d.StartTime != "" && d.EndTime != ""
}

// Filter is the part of a draft that decides which spaces are candidates.
type Filter struct {
	BuildingID string
	Date       string
	SpaceType  models.SpaceType
}

// Filter returns the candidate filter of d.
func (d Draft) Filter() Filter {
	return Filter{BuildingID: d.BuildingID, Date: d.Date, SpaceType: d.SpaceType}
}

// Input converts a completed draft into a booking payload for spaceID.
func (d Draft) Input(spaceID string) models.BookingInput {
	in := models.BookingInput{
		BuildingID:  d.BuildingID,
		SpaceID:     spaceID,
		SpaceType:   d.SpaceType,
		BookingDate: d.Date,
	}
	if d.IsMeetingRoom() && d.HasTimes() {
		start, end := d.StartTime, d.EndTime
		in.StartTime = &start
		in.EndTime = &end
	}
	return in
}

// ValidationError names the wizard field that blocked a transition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// DateInWindow reports whether date (YYYY-MM-DD) is tomorrow or the day
// after, counted in calendar days in now's location.
func DateInWindow(date string, now time.Time) bool {
	d, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := daysBetween(today, d)
	return days >= minDaysAhead && days <= maxDaysAhead
}

// daysBetween counts calendar days from a to b, both at local midnight.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// TimeRangeValid reports whether both "HH:MM" values parse and end > start.
func TimeRangeValid(start, end string) bool {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return false
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return false
	}
	return e.After(s)
}
