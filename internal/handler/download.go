package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/labstack/echo/v4"

	"shareqr/internal/archive"
	"shareqr/internal/db"
	"shareqr/internal/model"
	"shareqr/internal/storage"
)

// HandleDownload serves one file of a session by its original name.
func (h *Handler) HandleDownload(c echo.Context) error {
	uploadID := c.Param("uploadID")
	filename := c.Param("filename")

	session, err := h.db.GetUpload(uploadID)
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Upload not found"})
		}
		log.Printf("Error: failed to load upload %s: %v", uploadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	path, err := h.sandbox.Resolve(session, filename)
	if err != nil {
		return h.resolveError(c, err)
	}

	record, _ := session.FileByName(filename)
	h.recorder.Record(uploadID, h.requestMeta(c), filename)

	return h.streamFile(c, path, record)
}

// HandleDownloadAll streams a zip bundle of every file in the session.
func (h *Handler) HandleDownloadAll(c echo.Context) error {
	uploadID := c.Param("uploadID")

	session, err := h.db.GetUpload(uploadID)
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Upload not found"})
		}
		log.Printf("Error: failed to load upload %s: %v", uploadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	if len(session.Files) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No files to download"})
	}

	h.recorder.Record(uploadID, h.requestMeta(c), archive.BundleName)

	c.Response().Header().Set("Content-Type", "application/zip")
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="upload-%s.zip"`, uploadID))
	c.Response().WriteHeader(http.StatusOK)

	written, err := archive.Bundle(c.Request().Context(), session, h.sandbox, c.Response())
	if err != nil {
		// Usually the client went away mid-stream. The response is already
		// committed, so this is logged and not escalated.
		log.Printf("Warning: bundle for %s aborted after %d bytes: %v", uploadID, written, err)
		return nil
	}

	log.Printf("Bundle served: %s (%d bytes) to %s", uploadID, written, c.RealIP())
	return nil
}

// resolveError maps sandbox resolution failures to responses without leaking
// internal detail. Forbidden stays distinct from not-found.
func (h *Handler) resolveError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Access denied"})
	case errors.Is(err, storage.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "File not found"})
	default:
		log.Printf("Error: file resolution failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}
}

// streamFile copies a resolved file to the response with a bounded buffer.
func (h *Handler) streamFile(c echo.Context, path string, record model.FileRecord) error {
	file, err := os.Open(path)
	if err != nil {
		log.Printf("Error: failed to open file for download: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Response().Header().Set("Content-Type", contentType)
	c.Response().Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(record.OriginalName)))
	c.Response().WriteHeader(http.StatusOK)

	written, err := h.copyBuffered(c.Response(), file)
	if err != nil {
		// Client disconnects land here; normal termination.
		log.Printf("Warning: download of %s aborted after %d bytes: %v",
			record.OriginalName, written, err)
		return nil
	}

	log.Printf("File served: %s (%d bytes) to %s", record.OriginalName, written, c.RealIP())
	return nil
}

// copyBuffered streams with the configured buffer size so a large file never
// sits fully in memory.
func (h *Handler) copyBuffered(w io.Writer, file *os.File) (int64, error) {
	bufferSize := h.cfg.StreamingBufferSizeToBytes()
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}

	buffer := make([]byte, bufferSize)
	var total int64

	for {
		n, err := file.Read(buffer)
		if n > 0 {
			written, writeErr := w.Write(buffer[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}
