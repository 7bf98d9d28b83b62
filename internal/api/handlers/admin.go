package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/export"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/resource"
	"github.com/pconnect/portal/internal/services"
)

// Resource wires one admin collection to its cached store.
type Resource[T any] struct {
	Name  string
	Store *resource.Store[T]

	// Get fetches a single item that is not in the cached list.
	Get func(ctx context.Context, id string) (T, error)

	// Fields are the searchable text of an item for ?q=.
	Fields func(T) []string

	// Narrow applies resource-specific query filters. Optional.
	Narrow func(items []T, query url.Values) []T

	// Columns enables GET .../export when set.
	Columns []export.Column[T]

	Now func() time.Time
}

func (res Resource[T]) filtered(r *http.Request, items []T) []T {
	query := r.URL.Query()
	if res.Narrow != nil {
		items = res.Narrow(items, query)
	}
	return resource.Search(items, query.Get("q"), res.Fields)
}

// List loads the collection and applies ?q= and any resource filters.
func (res Resource[T]) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := res.Store.Load(sessionOf(r).Context(r.Context()))
		if err != nil {
			writeListError[T](w, r, err)
			return
		}
		writeList(w, res.filtered(r, items))
	}
}

// Show returns one item.
func (res Resource[T]) Show() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := res.Get(sessionOf(r).Context(r.Context()), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, item)
	}
}

// Create validates and adds an item.
func (res Resource[T]) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item T
		if !decodeBody(w, r, &item) || !validate(w, r, &item) {
			return
		}

		created, err := res.Store.Create(sessionOf(r).Context(r.Context()), item)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, created)
	}
}

// Update validates and replaces an item.
func (res Resource[T]) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item T
		if !decodeBody(w, r, &item) || !validate(w, r, &item) {
			return
		}

		updated, err := res.Store.Update(sessionOf(r).Context(r.Context()), mux.Vars(r)["id"], item)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete removes an item.
func (res Resource[T]) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := res.Store.Delete(sessionOf(r).Context(r.Context()), mux.Vars(r)["id"]); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Export downloads the filtered list as CSV.
func (res Resource[T]) Export() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := res.Store.Load(sessionOf(r).Context(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeCSV(w, r, res.Name, res.filtered(r, items), res.Columns, res.Now)
	}
}

// Register mounts the collection routes on r.
func (res Resource[T]) Register(r *mux.Router) {
	r.HandleFunc("", res.List()).Methods("GET")
	r.HandleFunc("", res.Create()).Methods("POST")
	if res.Columns != nil {
		r.HandleFunc("/export", res.Export()).Methods("GET")
	}
	if res.Get != nil {
		r.HandleFunc("/{id}", res.Show()).Methods("GET")
	}
	r.HandleFunc("/{id}", res.Update()).Methods("PUT")
	r.HandleFunc("/{id}", res.Delete()).Methods("DELETE")
}

func writeCSV[T any](w http.ResponseWriter, r *http.Request, name string, rows []T, cols []export.Column[T], now func() time.Time) {
	data, err := export.ToCSV(rows, cols)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if now == nil {
		now = time.Now
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(name, now())))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Searchable text per resource.

func BuildingFields(b models.Building) []string { return []string{b.Name, b.Address} }

func SpaceFields(s models.Space) []string {
	return []string{s.Name, s.Floor, s.Block, string(s.SpaceType)}
}

func UserFields(u models.User) []string {
	return []string{u.FullName(), u.Email, u.Mobile, u.Role, export.Deref(u.Programme)}
}

func ProgrammeFields(p models.Programme) []string { return []string{p.Name, p.Description} }

func LaptopFields(l models.Laptop) []string {
	return []string{l.SerialNumber, l.Brand, l.Model, l.OwnerName, l.Status}
}

func BookingFields(b models.Booking) []string {
	return []string{b.UserName, b.UserEmail, b.BuildingName, b.SpaceName, b.Status}
}

func CheckInFields(c models.CheckIn) []string {
	return []string{c.UserName, c.UserEmail, c.BuildingName, c.Status}
}

// NarrowSpaces filters spaces by ?building_id= and ?space_type=.
func NarrowSpaces(items []models.Space, query url.Values) []models.Space {
	building, spaceType := query.Get("building_id"), query.Get("space_type")
	return resource.Filter(items, func(s models.Space) bool {
		return (building == "" || s.BuildingID == building) &&
			(spaceType == "" || string(s.SpaceType) == spaceType)
	})
}

// NarrowUsers filters users by ?role=.
func NarrowUsers(items []models.User, query url.Values) []models.User {
	role := query.Get("role")
	if role == "" {
		return items
	}
	return resource.Filter(items, func(u models.User) bool { return u.Role == role })
}

// AdminBookings lists every booking, filtered server-side by the query
// string and client-side by ?q=.
func AdminBookings(bookings *services.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := loadAdminBookings(w, r, bookings, writeListError[models.Booking])
		if !ok {
			return
		}
		writeList(w, list)
	}
}

// ExportBookings downloads the admin booking list as CSV.
func ExportBookings(bookings *services.BookingService, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := loadAdminBookings(w, r, bookings, writeError)
		if !ok {
			return
		}
		writeCSV(w, r, "bookings", list, export.BookingColumns, now)
	}
}

// errorWriter answers a failed load.
type errorWriter func(w http.ResponseWriter, r *http.Request, err error)

func loadAdminBookings(w http.ResponseWriter, r *http.Request, bookings *services.BookingService, onErr errorWriter) ([]models.Booking, bool) {
	var filter models.BookingFilter
	if !decodeQuery(w, r, &filter) {
		return nil, false
	}
	list, err := bookings.AdminList(sessionOf(r).Context(r.Context()), filter)
	if err != nil {
		onErr(w, r, err)
		return nil, false
	}
	return resource.Search(list, r.URL.Query().Get("q"), BookingFields), true
}

// UpdateBooking lets an admin change a booking's date, space or status.
func UpdateBooking(bookings *services.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.BookingInput
		if !decodeBody(w, r, &in) || !validate(w, r, &in) {
			return
		}

		updated, err := bookings.Update(sessionOf(r).Context(r.Context()), mux.Vars(r)["id"], in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, updated)
	}
}

// AdminCheckIns lists check-ins with filters.
func AdminCheckIns(checkins *services.CheckInService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := loadAdminCheckIns(w, r, checkins, writeListError[models.CheckIn])
		if !ok {
			return
		}
		writeList(w, list)
	}
}

// ExportCheckIns downloads the check-in list as CSV.
func ExportCheckIns(checkins *services.CheckInService, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, ok := loadAdminCheckIns(w, r, checkins, writeError)
		if !ok {
			return
		}
		writeCSV(w, r, "checkins", list, export.CheckInColumns, now)
	}
}

func loadAdminCheckIns(w http.ResponseWriter, r *http.Request, checkins *services.CheckInService, onErr errorWriter) ([]models.CheckIn, bool) {
	var filter models.CheckInFilter
	if !decodeQuery(w, r, &filter) {
		return nil, false
	}
	list, err := checkins.List(sessionOf(r).Context(r.Context()), filter)
	if err != nil {
		onErr(w, r, err)
		return nil, false
	}
	return resource.Search(list, r.URL.Query().Get("q"), CheckInFields), true
}

// BuildingChildren lists the spaces, floors or blocks of a building.
func BuildingChildren[T any](load func(ctx context.Context, buildingID string) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := load(sessionOf(r).Context(r.Context()), mux.Vars(r)["id"])
		if err != nil {
			writeListError[T](w, r, err)
			return
		}
		writeList(w, list)
	}
}
