package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/services"
)

func currentUserID(r *http.Request) string {
	if u := sessionOf(r).User(); u != nil {
		return u.ID
	}
	return ""
}

// CheckIn records the signed-in user's arrival.
func CheckIn(checkins *services.CheckInService) http.HandlerFunc {
	return checkInAction(checkins.CheckIn)
}

// CheckOut records the signed-in user's departure.
func CheckOut(checkins *services.CheckInService) http.HandlerFunc {
	return checkInAction(checkins.CheckOut)
}

func checkInAction(action func(ctx context.Context, req models.CheckInRequest) (*models.CheckIn, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CheckInRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			req.UserID = currentUserID(r)
		}
		if req.BuildingID == "" && req.QRCode == "" {
			middleware.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, middleware.ErrValidation,
				"Please select a building", map[string]string{"building_id": "Please select a building"})
			return
		}

		rec, err := action(sessionOf(r).Context(r.Context()), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, rec)
	}
}

// CheckInHistory lists the signed-in user's check-ins.
func CheckInHistory(checkins *services.CheckInService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := checkins.ForUser(sessionOf(r).Context(r.Context()), currentUserID(r))
		if err != nil {
			writeListError[models.CheckIn](w, r, err)
			return
		}
		writeList(w, list)
	}
}

// GenerateQR issues a check-in QR code for the signed-in user.
func GenerateQR(checkins *services.CheckInService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := checkins.GenerateQR(sessionOf(r).Context(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, code)
	}
}

// CodeRequest carries a scanned QR code.
type CodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// VerifyQR asks the API whether a scanned code is valid. The verdict always
// comes from the server.
func VerifyQR(checkins *services.CheckInService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CodeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		if !validate(w, r, &req) {
			return
		}

		result, err := checkins.VerifyQR(sessionOf(r).Context(r.Context()), req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// ScanQR checks in the holder of a scanned code at a checkpoint.
func ScanQR(checkins *services.CheckInService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CodeRequest
		if !decodeBody(w, r, &req) || !validate(w, r, &req) {
			return
		}

		rec, err := checkins.ScanQR(sessionOf(r).Context(r.Context()), strings.TrimSpace(req.Code))
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, rec)
	}
}

// LaptopScanRequest identifies a laptop and the person carrying it.
type LaptopScanRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
}

// ScanLaptop checks a laptop against its registered owner.
func ScanLaptop(laptops *services.LaptopService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LaptopScanRequest
		if !decodeBody(w, r, &req) || !validate(w, r, &req) {
			return
		}

		result, err := laptops.Scan(sessionOf(r).Context(r.Context()), req.SerialNumber, req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, result)
	}
}

// RegisterVisitor registers a kiosk visitor.
func RegisterVisitor(visitors *services.VisitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.VisitorInput
		if !decodeBody(w, r, &in) {
			return
		}
		in.Phone = strings.TrimSpace(in.Phone)
		if !validate(w, r, &in) {
			return
		}

		v, err := visitors.Register(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, v)
	}
}

// SearchVisitors finds visitors by name, phone, status or date.
func SearchVisitors(visitors *services.VisitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q models.VisitorQuery
		if !decodeQuery(w, r, &q) {
			return
		}

		list, err := visitors.Search(r.Context(), q)
		if err != nil {
			writeListError[models.Visitor](w, r, err)
			return
		}
		writeList(w, list)
	}
}

// VisitorByPhone looks a returning visitor up by phone number.
func VisitorByPhone(visitors *services.VisitorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := visitors.ByPhone(r.Context(), mux.Vars(r)["phone"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, v)
	}
}

// VisitorCheckIn moves a visitor to checked in.
func VisitorCheckIn(visitors *services.VisitorService) http.HandlerFunc {
	return visitorTransition(visitors.CheckIn)
}

// VisitorCheckOut moves a visitor to checked out.
func VisitorCheckOut(visitors *services.VisitorService) http.HandlerFunc {
	return visitorTransition(visitors.CheckOut)
}

func visitorTransition(action func(ctx context.Context, id string) (*models.Visitor, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := action(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, r, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, v)
	}
}
