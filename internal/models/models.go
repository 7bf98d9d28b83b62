// Package models contains the DTOs exchanged with the remote P-Connect API.
//
// Most of these are passed through unchanged; only bookings and spaces carry
// behavior the portal relies on.
package models

import "time"

// Role names issued by the remote API.
const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleSecurity = "security"
)

// User is an employee, administrator or security officer account.
type User struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"first_name" validate:"required"`
	LastName    string     `json:"last_name" validate:"required"`
	Email       string     `json:"email" validate:"required,email"`
	Mobile      string     `json:"mobile,omitempty" validate:"omitempty,mobile"`
	Role        string     `json:"role,omitempty" validate:"omitempty,oneof=user admin security"`
	Password    string     `json:"password,omitempty"` // write-only, set by admins on create
	ProgrammeID *string    `json:"programme_id,omitempty"`
	Programme   *string    `json:"programme_name,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// FullName joins first and last names.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// UserInput is the create/update payload for users.
type UserInput struct {
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	Email       string  `json:"email" validate:"required,email"`
	Mobile      string  `json:"mobile" validate:"required,mobile"`
	Password    string  `json:"password,omitempty"`
	Role        string  `json:"role,omitempty" validate:"omitempty,oneof=user admin security"`
	ProgrammeID *string `json:"programme_id,omitempty"`
}

// Credentials are posted to the login endpoints.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by every login endpoint.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// Building is a site containing bookable spaces.
type Building struct {
	ID        string     `json:"id"`
	Name      string     `json:"name" validate:"required"`
	Address   string     `json:"address,omitempty"`
	Floors    int        `json:"floors,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Floor is a level inside a building.
type Floor struct {
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`
	Name       string `json:"name"`
	Number     int    `json:"number"`
}

// Block is a wing or section of a building.
type Block struct {
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`
	Name       string `json:"name"`
}

// SpaceType is one of the three bookable space kinds.
type SpaceType string

const (
	SpaceDesk        SpaceType = "desk"
	SpaceOffice      SpaceType = "office"
	SpaceMeetingRoom SpaceType = "meeting_room"
)

// Valid reports whether t is a known space type.
func (t SpaceType) Valid() bool {
	switch t {
	case SpaceDesk, SpaceOffice, SpaceMeetingRoom:
		return true
	}
	return false
}

// Space is a bookable unit belonging to a building.
type Space struct {
	ID         string    `json:"id"`
	BuildingID string    `json:"building_id" validate:"required"`
	Name       string    `json:"name" validate:"required"`
	SpaceType  SpaceType `json:"space_type" validate:"required,oneof=desk office meeting_room"`
	Floor      string    `json:"floor,omitempty"`
	Block      string    `json:"block,omitempty"`
	Capacity   int       `json:"capacity,omitempty"`
	IsActive   *bool     `json:"is_active,omitempty"`
}

// Booking statuses.
const (
	BookingConfirmed = "confirmed"
	BookingPending   = "pending"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Booking is a reservation of a space on a date.
type Booking struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	UserName     string     `json:"user_name,omitempty"`
	UserEmail    string     `json:"user_email,omitempty"`
	BuildingID   string     `json:"building_id"`
	BuildingName string     `json:"building_name,omitempty"`
	SpaceID      string     `json:"space_id"`
	SpaceName    string     `json:"space_name,omitempty"`
	SpaceType    SpaceType  `json:"space_type"`
	BookingDate  string     `json:"booking_date"`
	StartTime    *string    `json:"start_time,omitempty"`
	EndTime      *string    `json:"end_time,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// Active reports whether the booking still holds its space.
func (b Booking) Active() bool {
	return b.Status != BookingCancelled
}

// BookingInput is the payload for creating or updating a booking.
type BookingInput struct {
	BuildingID  string    `json:"building_id" validate:"required"`
	SpaceID     string    `json:"space_id" validate:"required"`
	SpaceType   SpaceType `json:"space_type" validate:"required,oneof=desk office meeting_room"`
	BookingDate string    `json:"booking_date" validate:"required,datetime=2006-01-02"`
	StartTime   *string   `json:"start_time,omitempty"`
	EndTime     *string   `json:"end_time,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// BookingFilter narrows GET /bookings/.
type BookingFilter struct {
	UserID      string    `schema:"user_id,omitempty"`
	BuildingID  string    `schema:"building_id,omitempty"`
	SpaceType   SpaceType `schema:"space_type,omitempty"`
	BookingDate string    `schema:"booking_date,omitempty"`
	Status      string    `schema:"status,omitempty"`
}

// AvailabilityRequest asks the remote API whether a slot is free.
type AvailabilityRequest struct {
	SpaceID     string    `json:"space_id,omitempty"`
	BuildingID  string    `json:"building_id"`
	SpaceType   SpaceType `json:"space_type"`
	BookingDate string    `json:"booking_date"`
	StartTime   string    `json:"start_time,omitempty"`
	EndTime     string    `json:"end_time,omitempty"`
}

// AvailabilityResponse is the remote API's boolean-ish answer.
type AvailabilityResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// CheckIn records an employee's presence in a building for a day.
type CheckIn struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	UserName        string     `json:"user_name,omitempty"`
	UserEmail       string     `json:"user_email,omitempty"`
	BuildingID      string     `json:"building_id"`
	BuildingName    string     `json:"building_name,omitempty"`
	CheckInTime     *time.Time `json:"checkin_time,omitempty"`
	CheckOutTime    *time.Time `json:"checkout_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Status          string     `json:"status,omitempty"`
}

// CheckInRequest is posted to check in or out.
type CheckInRequest struct {
	UserID     string `json:"user_id,omitempty"`
	BuildingID string `json:"building_id,omitempty"`
	QRCode     string `json:"qr_code,omitempty"`
	LaptopID   string `json:"laptop_id,omitempty"`
}

// CheckInFilter narrows the admin check-in list.
type CheckInFilter struct {
	UserID     string `schema:"user_id,omitempty"`
	BuildingID string `schema:"building_id,omitempty"`
	Date       string `schema:"date,omitempty"`
	Status     string `schema:"status,omitempty"`
}

// QRCode is an issued check-in QR code.
type QRCode struct {
	Code      string     `json:"code"`
	UserID    string     `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	ImageData string     `json:"image_data,omitempty"`
}

// QRVerification is the server's verdict on a scanned code.
type QRVerification struct {
	Valid   bool     `json:"valid"`
	Message string   `json:"message,omitempty"`
	User    *User    `json:"user,omitempty"`
	CheckIn *CheckIn `json:"checkin,omitempty"`
}

// Visitor statuses.
const (
	VisitorRegistered = "registered"
	VisitorCheckedIn  = "checked_in"
	VisitorCheckedOut = "checked_out"
)

// Visitor is a non-employee guest registered through the kiosk.
type Visitor struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone"`
	Company      string     `json:"company,omitempty"`
	HostName     string     `json:"host_name,omitempty"`
	Purpose      string     `json:"purpose,omitempty"`
	BuildingID   string     `json:"building_id,omitempty"`
	Status       string     `json:"status"`
	CheckInTime  *time.Time `json:"checkin_time,omitempty"`
	CheckOutTime *time.Time `json:"checkout_time,omitempty"`
}

// VisitorInput is the kiosk registration form.
type VisitorInput struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"required,mobile"`
	Company    string `json:"company,omitempty"`
	HostName   string `json:"host_name" validate:"required"`
	Purpose    string `json:"purpose,omitempty"`
	BuildingID string `json:"building_id,omitempty"`
}

// VisitorQuery narrows visitor searches.
type VisitorQuery struct {
	Name   string `schema:"name,omitempty"`
	Phone  string `schema:"phone,omitempty"`
	Status string `schema:"status,omitempty"`
	Date   string `schema:"date,omitempty"`
}

// Programme groups users (for example a graduate intake).
type Programme struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description,omitempty"`
	StartDate   string     `json:"start_date,omitempty"`
	EndDate     string     `json:"end_date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Laptop is a tracked laptop asset.
type Laptop struct {
	ID           string     `json:"id"`
	SerialNumber string     `json:"serial_number" validate:"required"`
	Brand        string     `json:"brand,omitempty"`
	Model        string     `json:"model,omitempty"`
	OwnerID      string     `json:"owner_id,omitempty"`
	OwnerName    string     `json:"owner_name,omitempty"`
	Status       string     `json:"status,omitempty"`
	LastScanned  *time.Time `json:"last_scanned,omitempty"`
}

// LaptopScan is the result of scanning a laptop at a checkpoint.
type LaptopScan struct {
	Laptop   Laptop `json:"laptop"`
	Mismatch bool   `json:"mismatch"`
	Message  string `json:"message,omitempty"`
}
