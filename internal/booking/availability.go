package booking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

const defaultSlotConcurrency = 8

// SpaceLister fetches the candidate spaces of a building.
type SpaceLister interface {
	ListFor(ctx context.Context, buildingID string, spaceType models.SpaceType) ([]models.Space, error)
}

// BookingSource fetches bookings and answers per-slot availability checks.
type BookingSource interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (bool, error)
}

// Snapshot maps every candidate space to whether it can be booked.
type Snapshot struct {
	Draft       Draft           `json:"draft"`
	Spaces      []models.Space  `json:"spaces"`
	Available   map[string]bool `json:"available"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// AvailableCount returns how many spaces are free.
func (s Snapshot) AvailableCount() int {
	n := 0
	for _, ok := range s.Available {
		if ok {
			n++
		}
	}
	return n
}

// Engine computes availability snapshots.
type Engine struct {
	spaces      SpaceLister
	bookings    BookingSource
	concurrency int
	clock       Clock
	logger      *zap.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithSlotConcurrency bounds the number of parallel per-slot checks.
func WithSlotConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an availability engine.
func NewEngine(spaces SpaceLister, bookings BookingSource, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		spaces:      spaces,
		bookings:    bookings,
		concurrency: defaultSlotConcurrency,
		clock:       time.Now,
		logger:      logger.With(zap.String("component", "availability")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refresh builds a complete snapshot for draft. The returned snapshot is only
// valid when err is nil.
func (e *Engine) Refresh(ctx context.Context, draft Draft) (Snapshot, error) {
	spaces, err := e.spaces.ListFor(ctx, draft.BuildingID, draft.SpaceType)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading spaces: %w", err)
	}
	spaces = candidates(spaces, draft)

	bookings, err := e.bookings.List(ctx, models.BookingFilter{BookingDate: draft.Date})
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading bookings: %w", err)
	}

	var available map[string]bool
	if draft.IsMeetingRoom() && draft.HasTimes() {
		available = e.checkSlots(ctx, spaces, draft)
	} else {
		available = occupancy(spaces, bookings, draft.Date)
	}

	return Snapshot{
		Draft:       draft,
		Spaces:      spaces,
		Available:   available,
		RefreshedAt: e.clock(),
	}, nil
}

// checkSlots asks the API about each space. Any failure, including 401 and
// 403, counts as available; the booking call is the authoritative check.
func (e *Engine) checkSlots(ctx context.Context, spaces []models.Space, draft Draft) map[string]bool {
	results := make([]bool, len(spaces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sp := range spaces {
		g.Go(func() error {
			ok, err := e.bookings.CheckAvailability(gctx, models.AvailabilityRequest{
				SpaceID:     sp.ID,
				BuildingID:  draft.BuildingID,
				SpaceType:   draft.SpaceType,
				BookingDate: draft.Date,
				StartTime:   draft.StartTime,
				EndTime:     draft.EndTime,
			})
			if err != nil {
				e.logger.Debug("Slot check failed, assuming available",
					zap.String("space", sp.ID),
					zap.Int("status", apiclient.StatusOf(err)),
					zap.Error(err))
				ok = true
			}
			results[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	available := make(map[string]bool, len(spaces))
	for i, sp := range spaces {
		available[sp.ID] = results[i]
	}
	return available
}

// occupancy marks a space unavailable when any non-cancelled booking holds it
// on date.
func occupancy(spaces []models.Space, bookings []models.Booking, date string) map[string]bool {
	taken := make(map[string]bool)
	for _, b := range bookings {
		if b.Active() && b.BookingDate == date {
			taken[b.SpaceID] = true
		}
	}

	available := make(map[string]bool, len(spaces))
	for _, sp := range spaces {
		available[sp.ID] = !taken[sp.ID]
	}
	return available
}

// candidates keeps the spaces matching the draft's building and type and
// drops duplicate ids.
func candidates(spaces []models.Space, draft Draft) []models.Space {
	seen := make(map[string]bool, len(spaces))
	out := make([]models.Space, 0, len(spaces))
	for _, sp := range spaces {
		if draft.BuildingID != "" && sp.BuildingID != "" && sp.BuildingID != draft.BuildingID {
			continue
		}
		if draft.SpaceType != "" && sp.SpaceType != draft.SpaceType {
			continue
		}
		if seen[sp.ID] {
			continue
		}
		seen[sp.ID] = true
		out = append(out, sp)
	}
	return out
}
