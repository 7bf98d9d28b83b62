package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies a websocket message.
type MessageType string

const (
	// Server to client.
	TypeAvailabilitySnapshot MessageType = "availability.snapshot"
	TypeAvailabilityError    MessageType = "availability.error"
	TypeBookingChanged       MessageType = "booking.changed"
	TypeNotification         MessageType = "notification"
	TypePong                 MessageType = "pong"
	TypeError                MessageType = "error"

	// Client to server.
	TypeAvailabilityRefresh MessageType = "availability.refresh"
	TypeBannerDismiss       MessageType = "availability.dismiss"
	TypePing                MessageType = "ping"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps payload with the current time.
func NewMessage(msgType MessageType, payload any) (Message, error) {
	m := Message{Type: msgType, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		m.Payload = raw
	}
	return m, nil
}

// JSON encodes the message.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// BookingChangedPayload announces a created or cancelled booking.
type BookingChangedPayload struct {
	BookingID string `json:"booking_id"`
	SpaceID   string `json:"space_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Action    string `json:"action"` // created, cancelled
}

// AvailabilityErrorPayload carries the banner of a failed refresh.
type AvailabilityErrorPayload struct {
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// NotificationPayload is a toast or banner.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title,omitempty"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload answers a malformed client command.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
