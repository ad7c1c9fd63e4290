package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"shareqr/internal/db"
	"shareqr/internal/model"
	"shareqr/internal/storage"
)

// HandleUpload accepts a multipart upload of one or more files, stores them
// inside the sandbox under a fresh session id and persists the session.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid multipart form"})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No files uploaded"})
	}

	uploadID := uuid.NewString()
	taken := make(map[string]struct{}, len(files))
	records := make([]model.FileRecord, 0, len(files))
	var totalSize int64

	for _, header := range files {
		if header.Size > h.cfg.MaxSizeToBytes() {
			h.rollback(uploadID)
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("File too large (max %d bytes)", h.cfg.MaxSizeToBytes()),
			})
		}

		storedName := storage.StoredNameFor(header.Filename, taken)
		taken[storedName] = struct{}{}

		src, err := header.Open()
		if err != nil {
			h.rollback(uploadID)
			log.Printf("Error: failed to open uploaded file %q: %v", header.Filename, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
		}

		size, err := h.sandbox.Save(uploadID, storedName, src)
		src.Close()
		if err != nil {
			h.rollback(uploadID)
			log.Printf("Error: failed to store uploaded file %q: %v", header.Filename, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
		}

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = h.detectContentType(uploadID, storedName)
		}

		records = append(records, model.FileRecord{
			OriginalName: header.Filename,
			StoredName:   storedName,
			Size:         size,
			ContentType:  contentType,
		})
		totalSize += size
	}

	session := &model.UploadSession{
		SessionID:  uploadID,
		CreatedAt:  time.Now().UTC(),
		Files:      records,
		TotalFiles: len(records),
		TotalSize:  totalSize,
	}

	if err := h.db.SaveUpload(session); err != nil {
		h.rollback(uploadID)
		if errors.Is(err, db.ErrDuplicateID) {
			// Practically impossible with v4 ids; fatal for this upload.
			log.Printf("Error: upload id collision for %s", uploadID)
		} else {
			log.Printf("Error: failed to save upload %s: %v", uploadID, err)
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	log.Printf("Upload completed: %s (%d files, %d bytes)", uploadID, len(records), totalSize)

	fileList := make([]map[string]any, 0, len(records))
	for _, r := range records {
		fileList = append(fileList, map[string]any{"name": r.OriginalName, "size": r.Size})
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"uploadId": uploadID,
		"shareUrl": h.cfg.ShareURL(uploadID),
		"qrUrl":    h.cfg.QRURL(uploadID),
		"files":    fileList,
	})
}

func (h *Handler) detectContentType(uploadID, storedName string) string {
	mtype, err := mimetype.DetectFile(filepath.Join(h.sandbox.Root(), uploadID, storedName))
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

func (h *Handler) rollback(uploadID string) {
	if err := h.sandbox.RemoveSession(uploadID); err != nil {
		log.Printf("Warning: failed to clean up files for aborted upload %s: %v", uploadID, err)
	}
}
