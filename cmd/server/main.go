// Package main is the entry point for the P-Connect portal server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/api"
	"github.com/pconnect/portal/internal/api/handlers"
	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/booking"
	"github.com/pconnect/portal/internal/cache"
	"github.com/pconnect/portal/internal/config"
	"github.com/pconnect/portal/internal/logging"
	"github.com/pconnect/portal/internal/services"
	"github.com/pconnect/portal/internal/session"
	"github.com/pconnect/portal/internal/storage"
	"github.com/pconnect/portal/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	addr := flag.String("addr", "", "HTTP server address (overrides APP_ADDR)")
	dataDir := flag.String("data", "", "Data directory for the SQLite database (overrides DATA_DIR)")
	staticDir := flag.String("static", "", "Directory for static frontend files (overrides STATIC_DIR)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting P-Connect portal",
		zap.String("version", version),
		zap.String("api", cfg.APIURL),
		zap.String("state_backend", cfg.StateBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "pconnect-portal.db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logging.Component(logger, "storage")); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	state, closeState, err := openStateStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeState()

	client := apiclient.New(apiclient.Config{
		BaseURL:      cfg.APIURL,
		Timeout:      cfg.APITimeout(),
		MaxAttempts:  cfg.APIMaxAttempts,
		RetryBackoff: cfg.APIRetryBackoff(),
		RateLimit:    cfg.APIRateLimit,
		LogRequests:  cfg.APILogRequests,
	}, logging.Component(logger, "apiclient"))

	svc := api.Services{
		Auth:       services.NewAuthService(client),
		Users:      services.NewUserService(client),
		Buildings:  services.NewBuildingService(client),
		Spaces:     services.NewSpaceService(client),
		Programmes: services.NewProgrammeService(client),
		Laptops:    services.NewLaptopService(client),
		Bookings:   services.NewBookingService(client),
		CheckIns:   services.NewCheckInService(client),
		Visitors:   services.NewVisitorService(client),
	}

	sessionRepo := storage.NewSessionRepository(db)
	sessions := session.NewManager(state, sessionRepo, svc.Auth, cfg.SessionIdle(), logger)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	scheduler := booking.NewCronScheduler(logger)
	scheduler.Start()
	defer scheduler.Stop()

	watchers := booking.NewRegistry()
	defer watchers.CloseAll()
	wizards := booking.NewWizards()

	flow := &handlers.BookingFlow{
		Buildings: svc.Buildings,
		Bookings:  svc.Bookings,
		Engine:    booking.NewEngine(svc.Spaces, svc.Bookings, logger),
		Scheduler: scheduler,
		Wizards:   wizards,
		Watchers:  watchers,
		Events:    websocket.NewEventBroadcaster(hub),
		Interval:  cfg.AvailabilityRefresh(),
		Logger:    logging.Component(logger, "booking"),
	}
	sessions.OnExpire(flow.CloseSession)
	sessions.OnSignOut(flow.CloseSession)

	if err := sessions.Start(); err != nil {
		return err
	}
	defer sessions.Stop()

	router := api.NewRouter(api.Deps{
		DB:       db,
		Sessions: sessions,
		Services: svc,
		Booking:  flow,
		Hub:      hub,
		Status: handlers.StatusSources{
			Version:      version,
			APIBaseURL:   cfg.APIURL,
			StateBackend: cfg.StateBackend,
			Sessions:     sessionRepo.Count,
			Clients:      hub.ClientCount,
			Watchers:     watchers.Len,
			Wizards:      wizards.Len,
		},
		Logger:        logger,
		StaticDir:     cfg.StaticDir,
		Origins:       cfg.AllowedOrigins(),
		SecureCookies: cfg.IsProduction(),
		KioskPerMin:   cfg.KioskRequestsPerMin,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// openStateStore picks where session state lives.
func openStateStore(ctx context.Context, cfg config.Config, db *storage.DB) (session.StateStore, func(), error) {
	switch cfg.StateBackend {
	case "redis":
		store, err := cache.Connect(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisStateDB,
			TTL:      cfg.SessionIdle(),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "", "sqlite":
		return storage.NewStateRepository(db), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.StateBackend)
	}
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + host + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
