package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"shareqr/internal/db"
)

// HandleQR renders the share link as a downloadable QR PNG. The encoder
// receives only the plain share URL, never internal state.
func (h *Handler) HandleQR(c echo.Context) error {
	uploadID := c.Param("uploadID")

	if _, err := h.db.GetUpload(uploadID); err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Upload not found"})
		}
		log.Printf("Error: failed to load upload %s: %v", uploadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	png, err := qrcode.Encode(h.cfg.ShareURL(uploadID), qrcode.Medium, 300)
	if err != nil {
		log.Printf("Error: failed to encode QR for %s: %v", uploadID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
	}

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="qr-%s.png"`, uploadID))
	return c.Blob(http.StatusOK, "image/png", png)
}
