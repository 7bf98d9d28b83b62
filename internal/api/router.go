// Package api composes sessions, services, the booking flow and exports into
// the portal's HTTP routes.
package api

import (
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/api/handlers"
	"github.com/pconnect/portal/internal/api/middleware"
	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/export"
	"github.com/pconnect/portal/internal/models"
	"github.com/pconnect/portal/internal/resource"
	"github.com/pconnect/portal/internal/services"
	"github.com/pconnect/portal/internal/session"
	"github.com/pconnect/portal/internal/websocket"
)

// Services bundles the remote API services.
type Services struct {
	Auth       *services.AuthService
	Users      *services.UserService
	Buildings  *services.BuildingService
	Spaces     *services.SpaceService
	Programmes *services.ProgrammeService
	Laptops    *services.LaptopService
	Bookings   *services.BookingService
	CheckIns   *services.CheckInService
	Visitors   *services.VisitorService
}

// Deps are the collaborators the router wires together.
type Deps struct {
	DB       handlers.Pinger
	Sessions *session.Manager
	Services Services
	Booking  *handlers.BookingFlow
	Hub      *websocket.Hub
	Status   handlers.StatusSources
	Logger   *zap.Logger

	StaticDir     string
	Origins       []string
	SecureCookies bool
	KioskPerMin   int
	Now           func() time.Time
}

// NewRouter creates the HTTP handler with all portal routes.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger.Named("http")))
	r.Use(middleware.Recovery(logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck(d.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(d.Status)).Methods("GET")

	// Everything else belongs to a portal session.
	app := api.NewRoute().Subrouter()
	app.Use(middleware.Sessions(d.Sessions, d.SecureCookies, logger))

	svc := d.Services

	// Auth
	app.HandleFunc("/auth/login", handlers.Login(services.LoginUser)).Methods("POST")
	app.HandleFunc("/auth/admin/login", handlers.Login(services.LoginAdmin)).Methods("POST")
	app.HandleFunc("/auth/security/login", handlers.Login(services.LoginSecurity)).Methods("POST")
	app.HandleFunc("/auth/register", handlers.Register(svc.Users)).Methods("POST")
	app.HandleFunc("/auth/logout", handlers.Logout()).Methods("POST")
	app.HandleFunc("/auth/me", handlers.Me()).Methods("GET")

	// Kiosk: public and rate limited.
	kiosk := app.PathPrefix("/kiosk").Subrouter()
	kiosk.Use(middleware.NewRateLimiter(d.KioskPerMin).Middleware)
	kiosk.HandleFunc("/visitors", handlers.RegisterVisitor(svc.Visitors)).Methods("POST")
	kiosk.HandleFunc("/visitors", handlers.SearchVisitors(svc.Visitors)).Methods("GET")
	kiosk.HandleFunc("/visitors/phone/{phone}", handlers.VisitorByPhone(svc.Visitors)).Methods("GET")
	kiosk.HandleFunc("/visitors/{id}/checkin", handlers.VisitorCheckIn(svc.Visitors)).Methods("POST")
	kiosk.HandleFunc("/visitors/{id}/checkout", handlers.VisitorCheckOut(svc.Visitors)).Methods("POST")

	// Signed-in pages.
	signedIn := app.NewRoute().Subrouter()
	signedIn.Use(middleware.RequireAuth)

	signedIn.HandleFunc("/home/notification", handlers.GetHomeNotification(d.Now)).Methods("GET")
	signedIn.HandleFunc("/home/notification/dismiss", handlers.DismissHomeNotification(d.Now)).Methods("POST")

	registerBookingRoutes(signedIn.PathPrefix("/bookings").Subrouter(), d)

	checkin := signedIn.PathPrefix("/checkin").Subrouter()
	checkin.HandleFunc("", handlers.CheckIn(svc.CheckIns)).Methods("POST")
	checkin.HandleFunc("/checkout", handlers.CheckOut(svc.CheckIns)).Methods("POST")
	checkin.HandleFunc("/history", handlers.CheckInHistory(svc.CheckIns)).Methods("GET")
	checkin.HandleFunc("/qr", handlers.GenerateQR(svc.CheckIns)).Methods("POST")

	security := app.PathPrefix("/security").Subrouter()
	security.Use(middleware.RequireRole(models.RoleSecurity, models.RoleAdmin))
	security.HandleFunc("/verify-qr", handlers.VerifyQR(svc.CheckIns)).Methods("POST")
	security.HandleFunc("/scan-qr", handlers.ScanQR(svc.CheckIns)).Methods("POST")
	security.HandleFunc("/laptops/scan", handlers.ScanLaptop(svc.Laptops)).Methods("POST")
	security.HandleFunc("/visitors", handlers.SearchVisitors(svc.Visitors)).Methods("GET")

	admin := app.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	registerAdminRoutes(admin, d)

	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	var h http.Handler = r
	h = gorillahandlers.CompressHandler(h)
	if len(d.Origins) > 0 {
		h = gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(d.Origins),
			gorillahandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			gorillahandlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
			gorillahandlers.AllowCredentials(),
		)(h)
	}
	return gorillahandlers.ProxyHeaders(h)
}

func registerBookingRoutes(b *mux.Router, d Deps) {
	flow := d.Booking

	b.HandleFunc("/wizard", flow.WizardState()).Methods("GET")
	b.HandleFunc("/wizard", flow.ResetWizard()).Methods("POST")
	b.HandleFunc("/wizard/buildings/retry", flow.RetryBuildings()).Methods("POST")
	b.HandleFunc("/wizard/selection", flow.Select()).Methods("PUT")
	b.HandleFunc("/wizard/advance", flow.Advance()).Methods("POST")
	b.HandleFunc("/wizard/back", flow.Back()).Methods("POST")
	b.HandleFunc("/wizard/goto/{step:[0-9]+}", flow.GoTo()).Methods("POST")

	b.HandleFunc("/availability", flow.Availability()).Methods("GET")
	b.HandleFunc("/availability", flow.CloseAvailability()).Methods("DELETE")
	b.HandleFunc("/availability/refresh", flow.RefreshAvailability()).Methods("POST")
	b.HandleFunc("/availability/dismiss", flow.DismissAvailabilityBanner()).Methods("POST")
	b.HandleFunc("/availability/ws", flow.Stream(d.Hub, handlers.NewUpgrader(d.Origins))).Methods("GET")

	b.HandleFunc("", flow.Confirm()).Methods("POST")
	b.HandleFunc("/mine", flow.MyBookings()).Methods("GET")
	b.HandleFunc("/{id}", flow.Cancel()).Methods("DELETE")
}

func registerAdminRoutes(admin *mux.Router, d Deps) {
	svc := d.Services
	logger := d.Logger

	// Admin lists depend on the caller's permissions, so only loads made
	// with the same token are shared.
	perSession := resource.WithLoadKey(apiclient.TokenOf)

	handlers.Resource[models.Building]{
		Name:   "buildings",
		Store:  resource.NewStore[models.Building]("buildings", svc.Buildings, buildingID, logger, perSession),
		Get:    svc.Buildings.Get,
		Fields: handlers.BuildingFields,
		Now:    d.Now,
	}.Register(admin.PathPrefix("/buildings").Subrouter())
	admin.HandleFunc("/buildings/{id}/spaces", handlers.BuildingChildren(svc.Buildings.Spaces)).Methods("GET")
	admin.HandleFunc("/buildings/{id}/floors", handlers.BuildingChildren(svc.Buildings.Floors)).Methods("GET")
	admin.HandleFunc("/buildings/{id}/blocks", handlers.BuildingChildren(svc.Buildings.Blocks)).Methods("GET")

	handlers.Resource[models.Space]{
		Name:   "spaces",
		Store:  resource.NewStore[models.Space]("spaces", svc.Spaces, spaceID, logger, perSession),
		Get:    svc.Spaces.Get,
		Fields: handlers.SpaceFields,
		Narrow: handlers.NarrowSpaces,
		Now:    d.Now,
	}.Register(admin.PathPrefix("/spaces").Subrouter())

	handlers.Resource[models.User]{
		Name:    "users",
		Store:   resource.NewStore[models.User]("users", svc.Users, userID, logger, perSession),
		Get:     svc.Users.Get,
		Fields:  handlers.UserFields,
		Narrow:  handlers.NarrowUsers,
		Columns: export.UserColumns,
		Now:     d.Now,
	}.Register(admin.PathPrefix("/users").Subrouter())

	handlers.Resource[models.Programme]{
		Name:   "programmes",
		Store:  resource.NewStore[models.Programme]("programmes", svc.Programmes, programmeID, logger, perSession),
		Get:    svc.Programmes.Get,
		Fields: handlers.ProgrammeFields,
		Now:    d.Now,
	}.Register(admin.PathPrefix("/programmes").Subrouter())

	handlers.Resource[models.Laptop]{
		Name:    "laptops",
		Store:   resource.NewStore[models.Laptop]("laptops", svc.Laptops, laptopID, logger, perSession),
		Get:     svc.Laptops.Get,
		Fields:  handlers.LaptopFields,
		Columns: export.LaptopColumns,
		Now:     d.Now,
	}.Register(admin.PathPrefix("/laptops").Subrouter())

	admin.HandleFunc("/bookings", handlers.AdminBookings(svc.Bookings)).Methods("GET")
	admin.HandleFunc("/bookings/export", handlers.ExportBookings(svc.Bookings, d.Now)).Methods("GET")
	admin.HandleFunc("/bookings/{id}", handlers.UpdateBooking(svc.Bookings)).Methods("PUT")
	admin.HandleFunc("/bookings/{id}", d.Booking.Cancel()).Methods("DELETE")
	admin.HandleFunc("/checkins", handlers.AdminCheckIns(svc.CheckIns)).Methods("GET")
	admin.HandleFunc("/checkins/export", handlers.ExportCheckIns(svc.CheckIns, d.Now)).Methods("GET")
}

func buildingID(b models.Building) string   { return b.ID }
func spaceID(s models.Space) string         { return s.ID }
func userID(u models.User) string           { return u.ID }
func programmeID(p models.Programme) string { return p.ID }
func laptopID(l models.Laptop) string       { return l.ID }
