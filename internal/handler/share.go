package handler

import (
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"shareqr/internal/db"
	"shareqr/internal/model"
	"shareqr/internal/utils"
)

var sharePage = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Shared Files</title>
<style>
body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
.file-list { list-style: none; padding: 0; }
.file-item { background: #f5f5f5; margin: 10px 0; padding: 15px; border-radius: 5px; display: flex; justify-content: space-between; align-items: center; }
.download-btn { background: #007bff; color: white; text-decoration: none; padding: 8px 15px; border-radius: 4px; }
.download-all { background: #28a745; color: white; text-decoration: none; padding: 10px 20px; border-radius: 4px; margin-bottom: 20px; display: inline-block; }
.file-size { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Shared Files</h1>
<p>{{.TotalFiles}} file(s) available</p>
<a href="/api/download/{{.ID}}/all" class="download-all">Download All (ZIP)</a>
<ul class="file-list">
{{range .Files}}<li class="file-item">
<div><strong>{{.Name}}</strong><div class="file-size">{{.Size}}</div></div>
<a href="/api/download/{{$.ID}}/{{.Name}}" class="download-btn">Download</a>
</li>
{{end}}</ul>
</body>
</html>
`))

type sharePageData struct {
	ID         string
	TotalFiles int
	Files      []sharePageFile
}

type sharePageFile struct {
	Name string
	Size string
}

// HandleShare serves the share link. Every hit records a page-view event;
// single-file sessions skip the listing and stream the file directly, with
// its own download event.
func (h *Handler) HandleShare(c echo.Context) error {
	uploadID := c.Param("uploadID")

	session, err := h.db.GetUpload(uploadID)
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return c.String(http.StatusNotFound, "Files not found")
		}
		log.Printf("Error: failed to load upload %s: %v", uploadID, err)
		return c.String(http.StatusInternalServerError, "Server error")
	}

	meta := h.requestMeta(c)
	h.recorder.Record(uploadID, meta, "")

	if len(session.Files) == 1 {
		return h.serveSingleFile(c, session)
	}

	data := sharePageData{ID: session.SessionID, TotalFiles: session.TotalFiles}
	for _, f := range session.Files {
		data.Files = append(data.Files, sharePageFile{
			Name: f.OriginalName,
			Size: utils.FormatFileSize(f.Size),
		})
	}

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return sharePage.Execute(c.Response(), data)
}

func (h *Handler) serveSingleFile(c echo.Context, session *model.UploadSession) error {
	record := session.Files[0]

	path, err := h.sandbox.Resolve(session, record.OriginalName)
	if err != nil {
		return h.resolveError(c, err)
	}

	h.recorder.Record(session.SessionID, h.requestMeta(c), record.OriginalName)
	return h.streamFile(c, path, record)
}
