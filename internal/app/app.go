package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"shareqr/internal/access"
	"shareqr/internal/analytics"
	"shareqr/internal/config"
	"shareqr/internal/db"
	"shareqr/internal/handler"
	middie "shareqr/internal/middleware"
	"shareqr/internal/migration"
	"shareqr/internal/storage"
)

// App represents the application
type App struct {
	server *echo.Echo
	config *config.Config
	db     *db.DB
	geo    *access.GeoDB
}

// New creates a new application instance
func New() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, err
	}

	migrator, err := migration.NewManagerWithDB(database.DB)
	if err != nil {
		database.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, err
	}

	sandbox, err := storage.NewSandbox(cfg.UploadPath)
	if err != nil {
		database.Close()
		return nil, err
	}

	geo, err := access.OpenGeoDB(cfg.GeoIPPath)
	if err != nil {
		// Geography degrades to unknown; the service still runs.
		log.Printf("Warning: geoip disabled: %v", err)
		geo = nil
	}

	recorder := access.NewRecorder(database, geo)
	aggregator := analytics.New(database)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	app := &App{
		server: e,
		config: cfg,
		db:     database,
		geo:    geo,
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middie.SecurityHeaders())
	e.Use(middleware.BodyLimit(bodyLimit(cfg)))

	registerRoutes(e, cfg, database, sandbox, recorder, aggregator)
	return app, nil
}

// bodyLimit renders the configured per-file ceiling as an exact byte count,
// so fractional MiB limits survive instead of truncating to whole megabytes.
func bodyLimit(cfg *config.Config) string {
	return fmt.Sprintf("%d", cfg.MaxSizeToBytes())
}

// Start starts the application
func (a *App) Start() {
	serverAddr := fmt.Sprintf(":%d", a.config.Port)

	go func() {
		if err := a.server.Start(serverAddr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	log.Printf("Server started on %s", serverAddr)
}

// Shutdown gracefully shuts down the server and closes shared resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)

	if cerr := a.geo.Close(); cerr != nil {
		log.Printf("Warning: failed to close geoip database: %v", cerr)
	}
	if cerr := a.db.Close(); cerr != nil {
		log.Printf("Warning: failed to close database: %v", cerr)
	}

	return err
}

// registerRoutes registers all HTTP routes
func registerRoutes(e *echo.Echo, cfg *config.Config, database *db.DB,
	sandbox *storage.Sandbox, recorder *access.Recorder, aggregator *analytics.Aggregator,
) {
	h := handler.NewHandler(cfg, database, sandbox, recorder, aggregator)

	e.POST("/api/upload", h.HandleUpload)
	e.GET("/share/:uploadID", h.HandleShare)
	e.GET("/api/download/:uploadID/all", h.HandleDownloadAll)
	e.GET("/api/download/:uploadID/:filename", h.HandleDownload)
	e.GET("/api/qr/:uploadID", h.HandleQR)
	e.GET("/api/stats/:uploadID", h.HandleUploadStats)
	e.GET("/api/dashboard", h.HandleDashboard)
	e.GET("/api/export/csv", h.HandleExportCSV)
}
