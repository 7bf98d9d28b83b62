package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

// CheckInService wraps the /checkins endpoints.
type CheckInService struct {
	api *apiclient.Client
}

// NewCheckInService creates a check-in service.
func NewCheckInService(api *apiclient.Client) *CheckInService {
	return &CheckInService{api: api}
}

// CheckIn records arrival in a building.
func (s *CheckInService) CheckIn(ctx context.Context, req models.CheckInRequest) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.api.Post(ctx, "/checkins/checkin", req, &checkIn); err != nil {
		return nil, fmt.Errorf("checking in: %w", err)
	}
	return &checkIn, nil
}

// CheckOut records departure.
func (s *CheckInService) CheckOut(ctx context.Context, req models.CheckInRequest) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.api.Post(ctx, "/checkins/checkout", req, &checkIn); err != nil {
		return nil, fmt.Errorf("checking out: %w", err)
	}
	return &checkIn, nil
}

// ForUser returns a user's check-in history.
func (s *CheckInService) ForUser(ctx context.Context, userID string) ([]models.CheckIn, error) {
	var checkIns []models.CheckIn
	if err := s.api.Get(ctx, "/checkins/user/"+url.PathEscape(userID), nil, &checkIns); err != nil {
		return nil, fmt.Errorf("listing check-ins for %s: %w", userID, err)
	}
	return checkIns, nil
}

// List returns all check-ins matching filter.
func (s *CheckInService) List(ctx context.Context, filter models.CheckInFilter) ([]models.CheckIn, error) {
	q, err := encodeQuery(filter)
	if err != nil {
		return nil, err
	}

	var checkIns []models.CheckIn
	if err := s.api.Get(ctx, "/checkins/", q, &checkIns); err != nil {
		return nil, fmt.Errorf("listing check-ins: %w", err)
	}
	return checkIns, nil
}

// GenerateQR issues a check-in QR code for the current user.
func (s *CheckInService) GenerateQR(ctx context.Context) (*models.QRCode, error) {
	var code models.QRCode
	if err := s.api.Post(ctx, "/checkins/qr/generate", nil, &code); err != nil {
		return nil, fmt.Errorf("generating QR code: %w", err)
	}
	return &code, nil
}

// ScanQR checks a user in or out using a scanned code.
func (s *CheckInService) ScanQR(ctx context.Context, code string) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	if err := s.api.Post(ctx, "/checkins/qr/scan", models.CheckInRequest{QRCode: code}, &checkIn); err != nil {
		return nil, fmt.Errorf("scanning QR code: %w", err)
	}
	return &checkIn, nil
}

// VerifyQR asks the API who a code belongs to and whether it is valid.
func (s *CheckInService) VerifyQR(ctx context.Context, code string) (*models.QRVerification, error) {
	var v models.QRVerification
	if err := s.api.Post(ctx, "/checkins/qr/verify", models.CheckInRequest{QRCode: code}, &v); err != nil {
		return nil, fmt.Errorf("verifying QR code: %w", err)
	}
	return &v, nil
}

// VisitorService wraps the /visitors endpoints used by the kiosk and the
// security desk. Kiosk calls are unauthenticated.
type VisitorService struct {
	api *apiclient.Client
}

// NewVisitorService creates a visitor service.
func NewVisitorService(api *apiclient.Client) *VisitorService {
	return &VisitorService{api: api}
}

// Register records a new visitor.
func (s *VisitorService) Register(ctx context.Context, in models.VisitorInput) (*models.Visitor, error) {
	var v models.Visitor
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/visitors/register",
		Body:     in,
		SkipAuth: true,
	}, &v)
	if err != nil {
		return nil, fmt.Errorf("registering visitor: %w", err)
	}
	return &v, nil
}

// Search finds visitors by name, phone, status or date.
func (s *VisitorService) Search(ctx context.Context, query models.VisitorQuery) ([]models.Visitor, error) {
	q, err := encodeQuery(query)
	if err != nil {
		return nil, err
	}

	var visitors []models.Visitor
	err = s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/visitors/search",
		Query:    q,
		SkipAuth: true,
	}, &visitors)
	if err != nil {
		return nil, fmt.Errorf("searching visitors: %w", err)
	}
	return visitors, nil
}

// ByPhone looks up a returning visitor.
func (s *VisitorService) ByPhone(ctx context.Context, phone string) (*models.Visitor, error) {
	var v models.Visitor
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodGet,
		Path:     "/visitors/phone/" + url.PathEscape(phone),
		SkipAuth: true,
	}, &v)
	if err != nil {
		return nil, fmt.Errorf("looking up visitor by phone: %w", err)
	}
	return &v, nil
}

// CheckIn marks a visitor as on site.
func (s *VisitorService) CheckIn(ctx context.Context, id string) (*models.Visitor, error) {
	return s.transition(ctx, id, "checkin")
}

// CheckOut marks a visitor as departed.
func (s *VisitorService) CheckOut(ctx context.Context, id string) (*models.Visitor, error) {
	return s.transition(ctx, id, "checkout")
}

func (s *VisitorService) transition(ctx context.Context, id, action string) (*models.Visitor, error) {
	var v models.Visitor
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/visitors/" + url.PathEscape(id) + "/" + action,
		SkipAuth: true,
	}, &v)
	if err != nil {
		return nil, fmt.Errorf("visitor %s %s: %w", id, action, err)
	}
	return &v, nil
}
