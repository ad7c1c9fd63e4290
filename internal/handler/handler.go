package handler

import (
	"github.com/labstack/echo/v4"

	"shareqr/internal/access"
	"shareqr/internal/analytics"
	"shareqr/internal/config"
	"shareqr/internal/db"
	"shareqr/internal/storage"
)

// Handler handles HTTP requests
type Handler struct {
	cfg      *config.Config
	db       *db.DB
	sandbox  *storage.Sandbox
	recorder *access.Recorder
	stats    *analytics.Aggregator
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, database *db.DB, sandbox *storage.Sandbox,
	recorder *access.Recorder, stats *analytics.Aggregator,
) *Handler {
	return &Handler{
		cfg:      cfg,
		db:       database,
		sandbox:  sandbox,
		recorder: recorder,
		stats:    stats,
	}
}

// requestMeta collects the client metadata the access recorder consumes.
func (h *Handler) requestMeta(c echo.Context) access.RequestMeta {
	return access.RequestMeta{
		IP:             c.RealIP(),
		UserAgent:      c.Request().Header.Get("User-Agent"),
		AcceptLanguage: c.Request().Header.Get("Accept-Language"),
	}
}
