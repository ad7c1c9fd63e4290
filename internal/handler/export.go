package handler

import (
	"encoding/csv"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"shareqr/internal/model"
)

var exportHeader = []string{
	"id", "upload_id", "ip_address", "country", "city",
	"device_type", "device_vendor", "device_model",
	"os_name", "os_version", "browser_name", "browser_version",
	"language", "file_accessed", "timestamp",
}

// HandleExportCSV streams the complete access log as CSV, newest first.
func (h *Handler) HandleExportCSV(c echo.Context) error {
	events, err := h.stats.ExportAll()
	if err != nil {
		log.Printf("Error: failed to export access log: %v", err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	if len(events) == 0 {
		return c.String(http.StatusNotFound, "No data to export")
	}

	c.Response().Header().Set("Content-Type", "text/csv")
	c.Response().Header().Set("Content-Disposition", `attachment; filename="access_logs.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write(exportHeader); err != nil {
		return err
	}

	for _, e := range events {
		if err := w.Write(exportRow(e)); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func exportRow(e model.AccessEvent) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.UploadID,
		e.IP,
		model.OrUnknown(e.Country),
		model.OrUnknown(e.City),
		model.OrUnknown(e.DeviceType),
		model.OrUnknown(e.DeviceVendor),
		model.OrUnknown(e.DeviceModel),
		model.OrUnknown(e.OSName),
		model.OrUnknown(e.OSVersion),
		model.OrUnknown(e.BrowserName),
		model.OrUnknown(e.BrowserVersion),
		model.OrUnknown(e.Language),
		e.FileAccessed,
		e.Timestamp.UTC().Format(time.RFC3339),
	}
}
