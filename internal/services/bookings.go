package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

// BookingService wraps the /bookings endpoints.
type BookingService struct {
	api *apiclient.Client
}

// NewBookingService creates a booking service.
func NewBookingService(api *apiclient.Client) *BookingService {
	return &BookingService{api: api}
}

// List returns the bookings matching filter.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	q, err := encodeQuery(filter)
	if err != nil {
		return nil, err
	}

	var bookings []models.Booking
	if err := s.api.Get(ctx, "/bookings/", q, &bookings); err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	return bookings, nil
}

// AdminList returns every booking across users.
func (s *BookingService) AdminList(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	q, err := encodeQuery(filter)
	if err != nil {
		return nil, err
	}

	var bookings []models.Booking
	if err := s.api.Get(ctx, "/bookings/admin/all", q, &bookings); err != nil {
		return nil, fmt.Errorf("listing all bookings: %w", err)
	}
	return bookings, nil
}

// Create books a space.
func (s *BookingService) Create(ctx context.Context, in models.BookingInput) (*models.Booking, error) {
	var booking models.Booking
	if err := s.api.Post(ctx, "/bookings/", in, &booking); err != nil {
		return nil, fmt.Errorf("creating booking: %w", err)
	}
	return &booking, nil
}

// Update changes an existing booking.
func (s *BookingService) Update(ctx context.Context, id string, in models.BookingInput) (*models.Booking, error) {
	var booking models.Booking
	if err := s.api.Put(ctx, "/bookings/"+url.PathEscape(id), in, &booking); err != nil {
		return nil, fmt.Errorf("updating booking %s: %w", id, err)
	}
	return &booking, nil
}

// Delete cancels a booking.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, "/bookings/"+url.PathEscape(id)); err != nil {
		return fmt.Errorf("deleting booking %s: %w", id, err)
	}
	return nil
}

// CheckAvailability asks whether a space is free for a slot.
func (s *BookingService) CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (bool, error) {
	var resp models.AvailabilityResponse
	if err := s.api.Post(ctx, "/bookings/check-availability", req, &resp); err != nil {
		return false, fmt.Errorf("checking availability of %s: %w", req.SpaceID, err)
	}
	return resp.Available, nil
}
