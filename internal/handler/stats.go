package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"shareqr/internal/db"
)

// HandleUploadStats returns the per-upload rollup.
func (h *Handler) HandleUploadStats(c echo.Context) error {
	uploadID := c.Param("uploadID")

	stats, err := h.stats.UploadStats(uploadID)
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Upload not found"})
		}
		log.Printf("Error: failed to compute stats for %s: %v", uploadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	return c.JSON(http.StatusOK, stats)
}

// HandleDashboard returns the global rollup across every session.
func (h *Handler) HandleDashboard(c echo.Context) error {
	data, err := h.stats.DashboardStats()
	if err != nil {
		log.Printf("Error: failed to compute dashboard data: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	return c.JSON(http.StatusOK, data)
}
