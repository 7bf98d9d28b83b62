package export

import (
	"strings"

	"github.com/pconnect/portal/internal/models"
)

// BookingColumns is the bookings export layout.
var BookingColumns = []Column[models.Booking]{
	{"Booking ID", func(b models.Booking) string { return b.ID }},
	{"User", func(b models.Booking) string { return OrNA(b.UserName) }},
	{"Email", func(b models.Booking) string { return OrNA(b.UserEmail) }},
	{"Building", func(b models.Booking) string { return OrNA(b.BuildingName) }},
	{"Space", func(b models.Booking) string { return OrNA(b.SpaceName) }},
	{"Space Type", func(b models.Booking) string { return spaceTypeLabel(b.SpaceType) }},
	{"Date", func(b models.Booking) string { return DateString(b.BookingDate, NA) }},
	{"Start Time", func(b models.Booking) string { return OrNA(Deref(b.StartTime)) }},
	{"End Time", func(b models.Booking) string { return OrNA(Deref(b.EndTime)) }},
	{"Status", func(b models.Booking) string { return OrNA(b.Status) }},
	{"Created At", func(b models.Booking) string { return Date(b.CreatedAt, NA) }},
}

// UserColumns is the users export layout.
var UserColumns = []Column[models.User]{
	{"ID", func(u models.User) string { return u.ID }},
	{"Name", func(u models.User) string { return u.FullName() }},
	{"Email", func(u models.User) string { return u.Email }},
	{"Mobile", func(u models.User) string { return OrNA(u.Mobile) }},
	{"Role", func(u models.User) string { return OrNA(u.Role) }},
	{"Programme", func(u models.User) string { return OrNA(Deref(u.Programme)) }},
	{"Status", func(u models.User) string { return activeLabel(u.IsActive) }},
	{"Created At", func(u models.User) string { return Date(u.CreatedAt, NA) }},
}

// CheckInColumns is the check-ins export layout.
var CheckInColumns = []Column[models.CheckIn]{
	{"ID", func(c models.CheckIn) string { return c.ID }},
	{"User", func(c models.CheckIn) string { return OrNA(c.UserName) }},
	{"Email", func(c models.CheckIn) string { return OrNA(c.UserEmail) }},
	{"Building", func(c models.CheckIn) string { return OrNA(c.BuildingName) }},
	{"Date", func(c models.CheckIn) string { return Date(c.CheckInTime, NA) }},
	{"Check-in Time", func(c models.CheckIn) string { return Clock(c.CheckInTime, NA) }},
	{"Check-out Time", func(c models.CheckIn) string { return Clock(c.CheckOutTime, NA) }},
	{"Duration", func(c models.CheckIn) string {
		return Duration(c.DurationMinutes, c.CheckInTime, c.CheckOutTime, NA)
	}},
	{"Status", func(c models.CheckIn) string { return OrNA(c.Status) }},
}

// LaptopColumns is the laptops export layout.
var LaptopColumns = []Column[models.Laptop]{
	{"ID", func(l models.Laptop) string { return l.ID }},
	{"Serial Number", func(l models.Laptop) string { return l.SerialNumber }},
	{"Brand", func(l models.Laptop) string { return OrNA(l.Brand) }},
	{"Model", func(l models.Laptop) string { return OrNA(l.Model) }},
	{"Owner", func(l models.Laptop) string { return OrNA(l.OwnerName) }},
	{"Status", func(l models.Laptop) string { return OrNA(l.Status) }},
	{"Last Scanned", func(l models.Laptop) string { return Date(l.LastScanned, NA) }},
}

func spaceTypeLabel(t models.SpaceType) string {
	if t == "" {
		return NA
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

func activeLabel(active *bool) string {
	switch {
	case active == nil:
		return NA
	case *active:
		return "Active"
	default:
		return "Inactive"
	}
}
