package websocket

import (
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/booking"
)

// EventBroadcaster turns portal events into websocket messages.
type EventBroadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewEventBroadcaster creates a broadcaster over hub.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: hub.logger}
}

// AvailabilityChanged pushes a watcher state to its owner: the snapshot, and
// the banner when the last refresh failed.
func (b *EventBroadcaster) AvailabilityChanged(owner string, state booking.WatchState) {
	b.sendTo(owner, TypeAvailabilitySnapshot, state)
	if state.Banner != "" {
		b.sendTo(owner, TypeAvailabilityError, AvailabilityErrorPayload{
			Message:     state.Banner,
			Dismissible: true,
		})
	}
}

// BookingChanged tells every page that a booking was created or cancelled.
func (b *EventBroadcaster) BookingChanged(payload BookingChangedPayload) {
	msg, err := NewMessage(TypeBookingChanged, payload)
	if err != nil {
		b.logger.Error("Failed to encode booking event", zap.Error(err))
		return
	}
	b.broadcast(msg)
}

// Notify sends a notification to one session.
func (b *EventBroadcaster) Notify(owner string, payload NotificationPayload) {
	b.sendTo(owner, TypeNotification, payload)
}

func (b *EventBroadcaster) sendTo(owner string, t MessageType, payload any) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		b.logger.Error("Failed to encode message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	b.hub.SendTo(owner, data)
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	b.hub.Broadcast(data)
}
