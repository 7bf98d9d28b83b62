package booking

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

type fakeSpaces struct {
	spaces []models.Space
	err    error
}

func (f *fakeSpaces) ListFor(ctx context.Context, buildingID string, spaceType models.SpaceType) ([]models.Space, error) {
	return f.spaces, f.err
}

type fakeBookings struct {
	mu       sync.Mutex
	bookings []models.Booking
	listErr  error
	filters  []models.BookingFilter
	checkFn  func(req models.AvailabilityRequest) (bool, error)
	checked  []string
}

func (f *fakeBookings) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.bookings, f.listErr
}

func (f *fakeBookings) CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (bool, error) {
	f.mu.Lock()
	f.checked = append(f.checked, req.SpaceID)
	f.mu.Unlock()
	return f.checkFn(req)
}

func space(id string, t models.SpaceType) models.Space {
	return models.Space{ID: id, BuildingID: "b1", Name: id, SpaceType: t}
}

func TestEngine_SnapshotHasOneEntryPerCandidate(t *testing.T) {
	spaces := &fakeSpaces{spaces: []models.Space{
		space("d1", models.SpaceDesk),
		space("d2", models.SpaceDesk),
		space("d3", models.SpaceDesk),
		space("o1", models.SpaceOffice),
	}}
	bookings := &fakeBookings{}
	engine := NewEngine(spaces, bookings, nil)

	snap, err := engine.Refresh(context.Background(), Draft{BuildingID: "b1", SpaceType: models.SpaceDesk, Date: "2026-10-16"})
	require.NoError(t, err)

	assert.Len(t, snap.Available, 3)
	for _, id := range []string{"d1", "d2", "d3"} {
		_, ok := snap.Available[id]
		assert.True(t, ok, "missing %s", id)
	}
	assert.Len(t, snap.Spaces, 3)
	assert.Equal(t, 3, snap.AvailableCount())

	require.Len(t, bookings.filters, 1)
	assert.Equal(t, "2026-10-16", bookings.filters[0].BookingDate)
}

func TestEngine_PermissionFailuresAreOptimistic(t *testing.T) {
	spaces := &fakeSpaces{spaces: []models.Space{
		space("unauth", models.SpaceMeetingRoom),
		space("forbidden", models.SpaceMeetingRoom),
		space("broken", models.SpaceMeetingRoom),
		space("taken", models.SpaceMeetingRoom),
		space("free", models.SpaceMeetingRoom),
	}}
	bookings := &fakeBookings{checkFn: func(req models.AvailabilityRequest) (bool, error) {
		assert.Equal(t, "09:00", req.StartTime)
		assert.Equal(t, "10:30", req.EndTime)
		switch req.SpaceID {
		case "unauth":
			return false, &apiclient.APIError{Status: http.StatusUnauthorized, Kind: apiclient.KindUnauthorized}
		case "forbidden":
			return false, &apiclient.APIError{Status: http.StatusForbidden, Kind: apiclient.KindForbidden}
		case "broken":
			return false, errors.New("connection reset")
		case "taken":
			return false, nil
		default:
			return true, nil
		}
	}}
	engine := NewEngine(spaces, bookings, nil, WithSlotConcurrency(2))

	snap, err := engine.Refresh(context.Background(), Draft{
		BuildingID: "b1",
		SpaceType:  models.SpaceMeetingRoom,
		Date:       "2026-10-16",
		StartTime:  "09:00",
		EndTime:    "10:30",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"unauth":    true,
		"forbidden": true,
		"broken":    true,
		"taken":     false,
		"free":      true,
	}, snap.Available)
	assert.Len(t, bookings.checked, 5)
}

func TestEngine_DeskOccupancyIgnoresCancelled(t *testing.T) {
	date := "2026-10-16"
	spaces := &fakeSpaces{spaces: []models.Space{space("X", models.SpaceDesk), space("Y", models.SpaceDesk), space("Z", models.SpaceDesk)}}
	bookings := &fakeBookings{bookings: []models.Booking{
		{ID: "1", SpaceID: "X", BookingDate: date, Status: models.BookingConfirmed},
		{ID: "2", SpaceID: "Y", BookingDate: date, Status: models.BookingCancelled},
		{ID: "3", SpaceID: "Z", BookingDate: "2026-10-17", Status: models.BookingConfirmed},
	}}
	engine := NewEngine(spaces, bookings, nil)

	snap, err := engine.Refresh(context.Background(), Draft{BuildingID: "b1", SpaceType: models.SpaceDesk, Date: date})
	require.NoError(t, err)

	assert.False(t, snap.Available["X"])
	assert.True(t, snap.Available["Y"])
	assert.True(t, snap.Available["Z"])
	assert.Empty(t, bookings.checked)
}

func TestEngine_MeetingRoomWithoutTimesUsesOccupancy(t *testing.T) {
	spaces := &fakeSpaces{spaces: []models.Space{space("m1", models.SpaceMeetingRoom)}}
	bookings := &fakeBookings{bookings: []models.Booking{
		{SpaceID: "m1", BookingDate: "2026-10-16", Status: models.BookingPending},
	}}
	engine := NewEngine(spaces, bookings, nil)

	snap, err := engine.Refresh(context.Background(), Draft{BuildingID: "b1", SpaceType: models.SpaceMeetingRoom, Date: "2026-10-16"})
	require.NoError(t, err)
	assert.False(t, snap.Available["m1"])
	assert.Empty(t, bookings.checked)
}

func TestEngine_FetchErrorsFail(t *testing.T) {
	tests := []struct {
		name     string
		spaces   *fakeSpaces
		bookings *fakeBookings
	}{
		{name: "spaces", spaces: &fakeSpaces{err: errors.New("down")}, bookings: &fakeBookings{}},
		{name: "bookings", spaces: &fakeSpaces{}, bookings: &fakeBookings{listErr: errors.New("down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.spaces, tt.bookings, nil).Refresh(context.Background(), Draft{BuildingID: "b1"})
			assert.ErrorContains(t, err, "down")
		})
	}
}
