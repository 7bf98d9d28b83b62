package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/booking"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/services"
	"github.com/pconnect/portal/internal/session"
	"github.com/pconnect/portal/internal/validation"
	ws "github.com/pconnect/portal/internal/websocket"
)

// BookingFlow serves the booking wizard, the availability page and booking
// mutations for every portal session.
type BookingFlow struct {
	Buildings booking.BuildingLister
	Bookings  *services.BookingService
	Engine    booking.Refresher
	Scheduler booking.Scheduler
	Wizards   *booking.Wizards
	Watchers  *booking.Registry
	Events    *ws.EventBroadcaster
	Interval  time.Duration
	Clock     booking.Clock
	Logger    *zap.Logger
}

func (f *BookingFlow) wizard(r *http.Request) *booking.Wizard {
	s := sessionOf(r)
	return f.Wizards.Open(s.ID(), func() *booking.Wizard {
		// Building loads run in the background, outside the request.
		lister := sessionBuildings{lister: f.Buildings, session: s}
		return booking.NewWizard(lister, f.Clock, f.Logger)
	})
}

func (f *BookingFlow) watcher(r *http.Request) *booking.Watcher {
	s := sessionOf(r)
	owner := s.ID()
	return f.Watchers.Open(owner, func() *booking.Watcher {
		return booking.NewWatcher(f.Engine, f.Scheduler, booking.WatcherConfig{
			Name:     "availability:" + owner,
			Interval: f.Interval,
			Context:  s.Context,
			OnChange: func(state booking.WatchState) {
				if f.Events != nil {
					f.Events.AvailabilityChanged(owner, state)
				}
			},
			Logger: f.Logger,
		})
	})
}

type sessionBuildings struct {
	lister  booking.BuildingLister
	session *session.Session
}

func (b sessionBuildings) List(ctx context.Context) ([]models.Building, error) {
	return b.lister.List(b.session.Context(ctx))
}

// WizardState returns the wizard, starting the building load if needed.
func (f *BookingFlow) WizardState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wz := f.wizard(r)
		wz.Enter()
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// ResetWizard discards the draft.
func (f *BookingFlow) ResetWizard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wz := f.wizard(r)
		wz.Reset()
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// RetryBuildings retries a failed building load.
func (f *BookingFlow) RetryBuildings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wz := f.wizard(r)
		wz.RetryBuildings()
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// Selection is a partial update of the draft. Absent fields are unchanged.
type Selection struct {
	BuildingID *string           `json:"building_id"`
	Floor      *string           `json:"floor"`
	SpaceType  *models.SpaceType `json:"space_type"`
	Date       *string           `json:"date"`
	StartTime  *string           `json:"start_time"`
	EndTime    *string           `json:"end_time"`
}

// Select applies a selection to the draft.
func (f *BookingFlow) Select() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sel Selection
		if !decodeBody(w, r, &sel) {
			return
		}

		wz := f.wizard(r)
		if sel.BuildingID != nil {
			wz.SelectBuilding(*sel.BuildingID)
		}
		if sel.Floor != nil {
			wz.SelectFloor(*sel.Floor)
		}
		if sel.SpaceType != nil {
			wz.SelectType(*sel.SpaceType)
		}
		if sel.Date != nil {
			wz.SelectDate(*sel.Date)
		}
		if sel.StartTime != nil || sel.EndTime != nil {
			d := wz.Draft()
			start, end := d.StartTime, d.EndTime
			if sel.StartTime != nil {
				start = *sel.StartTime
			}
			if sel.EndTime != nil {
				end = *sel.EndTime
			}
			wz.SelectTimes(start, end)
		}
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// Advance validates the current step and moves on.
func (f *BookingFlow) Advance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := f.wizard(r).Advance()
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

// Back moves one step back.
func (f *BookingFlow) Back() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wz := f.wizard(r)
		wz.Back()
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// GoTo jumps back to a completed step.
func (f *BookingFlow) GoTo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step, err := strconv.Atoi(mux.Vars(r)["step"])
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid step")
			return
		}
		wz := f.wizard(r)
		wz.GoTo(booking.Step(step))
		middleware.WriteJSON(w, http.StatusOK, wz.State())
	}
}

// completedDraft returns the draft of a finished wizard.
func (f *BookingFlow) completedDraft(r *http.Request) (booking.Draft, error) {
	state := f.wizard(r).State()
	if !state.Completed {
		return booking.Draft{}, booking.ErrIncomplete
	}
	return state.Draft, nil
}

func writeIncomplete(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Please complete your booking details first.")
}

// Availability opens (or updates) the availability page for the finished
// draft and returns its state after one refresh.
func (f *BookingFlow) Availability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := f.completedDraft(r)
		if err != nil {
			writeIncomplete(w)
			return
		}

		state, err := f.watcher(r).Start(sessionOf(r).Context(r.Context()), draft)
		if err != nil {
			f.Logger.Error("Failed to schedule availability refresh", zap.Error(err))
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to open availability")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, state)
	}
}

// RefreshAvailability refreshes the open availability page now.
func (f *BookingFlow) RefreshAvailability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wt, ok := f.Watchers.Get(sessionOf(r).ID())
		if !ok {
			writeIncomplete(w)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, wt.Refresh(sessionOf(r).Context(r.Context())))
	}
}

// DismissAvailabilityBanner hides the refresh error banner.
func (f *BookingFlow) DismissAvailabilityBanner() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wt, ok := f.Watchers.Get(sessionOf(r).ID()); ok {
			wt.DismissBanner()
			middleware.WriteJSON(w, http.StatusOK, wt.State())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CloseAvailability stops refreshing when the page is left.
func (f *BookingFlow) CloseAvailability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.Watchers.Close(sessionOf(r).ID())
		w.WriteHeader(http.StatusNoContent)
	}
}

// ConfirmRequest picks a space for the finished draft.
type ConfirmRequest struct {
	SpaceID string `json:"space_id" validate:"required"`
}

// Confirm books the chosen space when the draft date is still in the booking
// window, then resets the wizard and refreshes every open availability page.
func (f *BookingFlow) Confirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmRequest
		if !decodeBody(w, r, &req) || !validate(w, r, &req) {
			return
		}

		draft, err := f.wizard(r).Recheck()
		if errors.Is(err, booking.ErrIncomplete) {
			writeIncomplete(w)
			return
		}
		if err != nil {
			f.Watchers.Close(sessionOf(r).ID())
			writeError(w, r, err)
			return
		}

		in := draft.Input(req.SpaceID)
		if err := validation.Struct(in); err != nil {
			writeError(w, r, err)
			return
		}

		s := sessionOf(r)
		created, err := f.Bookings.Create(s.Context(r.Context()), in)
		if err != nil {
			writeError(w, r, err)
			return
		}

		f.Watchers.Close(s.ID())
		f.wizard(r).Reset()
		f.changed(r.Context(), ws.BookingChangedPayload{
			BookingID: created.ID,
			SpaceID:   created.SpaceID,
			Date:      created.BookingDate,
			Action:    "created",
		})
		middleware.WriteJSON(w, http.StatusCreated, created)
	}
}

// MyBookings lists the signed-in user's bookings.
func (f *BookingFlow) MyBookings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionOf(r)
		filter := models.BookingFilter{}
		if u := s.User(); u != nil {
			filter.UserID = u.ID
		}
		list, err := f.Bookings.List(s.Context(r.Context()), filter)
		if err != nil {
			writeListError[models.Booking](w, r, err)
			return
		}
		writeList(w, list)
	}
}

// Cancel deletes a booking and refreshes every open availability page.
func (f *BookingFlow) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := f.Bookings.Delete(sessionOf(r).Context(r.Context()), id); err != nil {
			writeError(w, r, err)
			return
		}
		f.changed(r.Context(), ws.BookingChangedPayload{BookingID: id, Action: "cancelled"})
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *BookingFlow) changed(ctx context.Context, payload ws.BookingChangedPayload) {
	if f.Events != nil {
		f.Events.BookingChanged(payload)
	}
	go f.Watchers.RefreshAll(context.WithoutCancel(ctx))
}

// CloseSession drops the wizard and watcher of an expired session.
func (f *BookingFlow) CloseSession(id string) {
	f.Watchers.Close(id)
	f.Wizards.Close(id)
}
