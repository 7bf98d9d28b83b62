package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

// UserService manages user accounts.
type UserService struct {
	crud[models.User]
}

// NewUserService creates a user service.
func NewUserService(api *apiclient.Client) *UserService {
	return &UserService{crud: newCRUD[models.User](api, "/users")}
}

// Register creates an account through the public registration endpoint.
func (s *UserService) Register(ctx context.Context, in models.UserInput) (*models.User, error) {
	var user models.User
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/users/register",
		Body:     in,
		SkipAuth: true,
	}, &user)
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}
	return &user, nil
}

// BuildingService manages buildings and their nested floors, blocks and spaces.
type BuildingService struct {
	crud[models.Building]
}

// NewBuildingService creates a building service.
func NewBuildingService(api *apiclient.Client) *BuildingService {
	return &BuildingService{crud: newCRUD[models.Building](api, "/buildings")}
}

// Spaces lists the spaces in a building.
func (s *BuildingService) Spaces(ctx context.Context, buildingID string) ([]models.Space, error) {
	var spaces []models.Space
	if err := s.api.Get(ctx, s.item(buildingID)+"/spaces", nil, &spaces); err != nil {
		return nil, fmt.Errorf("listing spaces for building %s: %w", buildingID, err)
	}
	return spaces, nil
}

// Floors lists the floors of a building.
func (s *BuildingService) Floors(ctx context.Context, buildingID string) ([]models.Floor, error) {
	var floors []models.Floor
	if err := s.api.Get(ctx, s.item(buildingID)+"/floors", nil, &floors); err != nil {
		return nil, fmt.Errorf("listing floors for building %s: %w", buildingID, err)
	}
	return floors, nil
}

// Blocks lists the blocks of a building.
func (s *BuildingService) Blocks(ctx context.Context, buildingID string) ([]models.Block, error) {
	var blocks []models.Block
	if err := s.api.Get(ctx, s.item(buildingID)+"/blocks", nil, &blocks); err != nil {
		return nil, fmt.Errorf("listing blocks for building %s: %w", buildingID, err)
	}
	return blocks, nil
}

// SpaceService manages bookable spaces.
type SpaceService struct {
	crud[models.Space]
}

// NewSpaceService creates a space service.
func NewSpaceService(api *apiclient.Client) *SpaceService {
	return &SpaceService{crud: newCRUD[models.Space](api, "/spaces")}
}

// ListFor returns the spaces of a building, optionally narrowed to one type.
func (s *SpaceService) ListFor(ctx context.Context, buildingID string, spaceType models.SpaceType) ([]models.Space, error) {
	q := url.Values{}
	setIf(q, "building_id", buildingID)
	setIf(q, "space_type", string(spaceType))
	return s.ListWhere(ctx, q)
}

// ProgrammeService manages programmes.
type ProgrammeService struct {
	crud[models.Programme]
}

// NewProgrammeService creates a programme service.
func NewProgrammeService(api *apiclient.Client) *ProgrammeService {
	return &ProgrammeService{crud: newCRUD[models.Programme](api, "/programmes")}
}

// LaptopService tracks laptop assets.
type LaptopService struct {
	crud[models.Laptop]
}

// NewLaptopService creates a laptop service.
func NewLaptopService(api *apiclient.Client) *LaptopService {
	return &LaptopService{crud: newCRUD[models.Laptop](api, "/laptops")}
}

// Scan records a laptop passing a checkpoint. Mismatch detection happens
// server-side.
func (s *LaptopService) Scan(ctx context.Context, serial, userID string) (*models.LaptopScan, error) {
	body := map[string]string{"serial_number": serial, "user_id": userID}
	var scan models.LaptopScan
	if err := s.api.Post(ctx, "/laptops/scan", body, &scan); err != nil {
		return nil, fmt.Errorf("scanning laptop %s: %w", serial, err)
	}
	return &scan, nil
}
