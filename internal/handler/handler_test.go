package handler

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shareqr/internal/access"
	"shareqr/internal/analytics"
	"shareqr/internal/config"
	"shareqr/internal/db"
	"shareqr/internal/model"
	"shareqr/internal/storage"
	"shareqr/internal/testutil"
)

type testEnv struct {
	handler *Handler
	echo    *echo.Echo
	db      *db.DB
	sandbox *storage.Sandbox
	cfg     *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()

	cfg := &config.Config{
		Port:            8080,
		BaseURL:         "http://localhost:8080/",
		UploadPath:      filepath.Join(dir, "uploads"),
		SQLitePath:      filepath.Join(dir, "test.db"),
		MaxSize:         1.0,
		StreamingBuffer: 64,
	}

	database, err := db.NewDB(cfg)
	require.NoError(t, err)
	require.NoError(t, testutil.RunTestMigrations(cfg.SQLitePath))
	t.Cleanup(func() { database.Close() })

	sandbox, err := storage.NewSandbox(cfg.UploadPath)
	require.NoError(t, err)

	recorder := access.NewRecorder(database, nil)
	aggregator := analytics.New(database)

	return &testEnv{
		handler: NewHandler(cfg, database, sandbox, recorder, aggregator),
		echo:    echo.New(),
		db:      database,
		sandbox: sandbox,
		cfg:     cfg,
	}
}

// seedSession stores files in the sandbox and persists a matching session,
// bypassing the upload handler.
func (env *testEnv) seedSession(t *testing.T, id string, files map[string]string) {
	t.Helper()

	session := &model.UploadSession{
		SessionID: id,
		CreatedAt: time.Now().UTC(),
	}

	for name, content := range files {
		_, err := env.sandbox.Save(id, name, strings.NewReader(content))
		require.NoError(t, err)
		session.Files = append(session.Files, model.FileRecord{
			OriginalName: name,
			StoredName:   name,
			Size:         int64(len(content)),
			ContentType:  "text/plain",
		})
		session.TotalSize += int64(len(content))
	}
	session.TotalFiles = len(session.Files)

	require.NoError(t, env.db.SaveUpload(session))
}

func (env *testEnv) newContext(method, target string, body *bytes.Buffer, contentType string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *bytes.Buffer
	if body == nil {
		reader = &bytes.Buffer{}
	} else {
		reader = body
	}

	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}

	rec := httptest.NewRecorder()
	return env.echo.NewContext(req, rec), rec
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func countEvents(t *testing.T, env *testEnv, uploadID string) int {
	t.Helper()

	var count int
	require.NoError(t, env.db.QueryRow(
		"SELECT COUNT(*) FROM access_logs WHERE upload_id = ?", uploadID).Scan(&count))
	return count
}

func TestHandleUpload(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{
		"a.txt": "0123456789",
		"b.txt": "01234567890123456789",
	})

	c, rec := env.newContext(http.MethodPost, "/api/upload", body, contentType)
	require.NoError(t, env.handler.HandleUpload(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		UploadID string           `json:"uploadId"`
		ShareURL string           `json:"shareUrl"`
		QRURL    string           `json:"qrUrl"`
		Files    []map[string]any `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.UploadID)
	assert.Equal(t, "http://localhost:8080/share/"+resp.UploadID, resp.ShareURL)
	assert.Equal(t, "http://localhost:8080/api/qr/"+resp.UploadID, resp.QRURL)
	assert.Len(t, resp.Files, 2)

	session, err := env.db.GetUpload(resp.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, session.TotalFiles)
	assert.Equal(t, int64(30), session.TotalSize)
}

func TestHandleUploadNoFiles(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, nil)

	c, rec := env.newContext(http.MethodPost, "/api/upload", body, contentType)
	require.NoError(t, env.handler.HandleUpload(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)

	// MaxSize is 1 MiB in the test config; two MiB must be rejected.
	body, contentType := multipartBody(t, map[string]string{
		"big.bin": strings.Repeat("a", 2*1024*1024),
	})

	c, rec := env.newContext(http.MethodPost, "/api/upload", body, contentType)
	require.NoError(t, env.handler.HandleUpload(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "File too large")
}

func TestHandleUploadDuplicateNames(t *testing.T) {
	env := newTestEnv(t)

	// Two parts sharing a filename: stored names must be disambiguated.
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, content := range []string{"first", "second"} {
		part, err := writer.CreateFormFile("files", "dup.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	c, rec := env.newContext(http.MethodPost, "/api/upload", body, writer.FormDataContentType())
	require.NoError(t, env.handler.HandleUpload(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		UploadID string `json:"uploadId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	session, err := env.db.GetUpload(resp.UploadID)
	require.NoError(t, err)
	require.Len(t, session.Files, 2)
	assert.Equal(t, "dup.txt", session.Files[0].StoredName)
	assert.Equal(t, "dup-1.txt", session.Files[1].StoredName)
}

func TestHandleDownload(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello world"})

	c, rec := env.newContext(http.MethodGet, "/api/download/up1/a.txt", nil, "")
	c.SetParamNames("uploadID", "filename")
	c.SetParamValues("up1", "a.txt")

	require.NoError(t, env.handler.HandleDownload(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.txt")

	assert.Equal(t, 1, countEvents(t, env, "up1"))
}

func TestHandleDownloadTraversalIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})

	c, rec := env.newContext(http.MethodGet, "/api/download/up1/x", nil, "")
	c.SetParamNames("uploadID", "filename")
	c.SetParamValues("up1", "../../etc/passwd")

	require.NoError(t, env.handler.HandleDownload(c))

	// 403, never 404: the violation stays distinguishable from a miss.
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, countEvents(t, env, "up1"))
}

func TestHandleDownloadMissingFile(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})

	c, rec := env.newContext(http.MethodGet, "/api/download/up1/x", nil, "")
	c.SetParamNames("uploadID", "filename")
	c.SetParamValues("up1", "other.txt")

	require.NoError(t, env.handler.HandleDownload(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDownloadUnknownUpload(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.newContext(http.MethodGet, "/api/download/missing/a.txt", nil, "")
	c.SetParamNames("uploadID", "filename")
	c.SetParamValues("missing", "a.txt")

	require.NoError(t, env.handler.HandleDownload(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDownloadAll(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{
		"a.txt": "contents of a",
		"b.txt": "contents of b",
	})

	c, rec := env.newContext(http.MethodGet, "/api/download/up1/all", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("up1")

	require.NoError(t, env.handler.HandleDownloadAll(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	reader, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, reader.File, 2)

	// The bundle download is recorded under its archive name.
	var fileAccessed string
	require.NoError(t, env.db.QueryRow(
		"SELECT file_accessed FROM access_logs WHERE upload_id = ?", "up1").Scan(&fileAccessed))
	assert.Equal(t, "all_files.zip", fileAccessed)
}

func TestHandleDownloadAllEmptySession(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "empty", nil)

	c, rec := env.newContext(http.MethodGet, "/api/download/empty/all", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("empty")

	require.NoError(t, env.handler.HandleDownloadAll(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleShareListsFiles(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{
		"report.pdf": "pdf bytes",
		"notes.txt":  "notes",
	})

	c, rec := env.newContext(http.MethodGet, "/share/up1", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("up1")

	require.NoError(t, env.handler.HandleShare(c))
	require.Equal(t, http.StatusOK, rec.Code)

	page := rec.Body.String()
	assert.Contains(t, page, "report.pdf")
	assert.Contains(t, page, "notes.txt")
	assert.Contains(t, page, "/api/download/up1/all")

	// One page-view event with no file attached.
	var nullCount int
	require.NoError(t, env.db.QueryRow(
		"SELECT COUNT(*) FROM access_logs WHERE upload_id = ? AND file_accessed IS NULL",
		"up1").Scan(&nullCount))
	assert.Equal(t, 1, nullCount)
}

func TestHandleShareSingleFileStreamsDirectly(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"only.txt": "single file"})

	c, rec := env.newContext(http.MethodGet, "/share/up1", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("up1")

	require.NoError(t, env.handler.HandleShare(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "single file", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "only.txt")

	// Page view plus download.
	assert.Equal(t, 2, countEvents(t, env, "up1"))
}

func TestHandleShareNotFound(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.newContext(http.MethodGet, "/share/missing", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("missing")

	require.NoError(t, env.handler.HandleShare(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Files not found", rec.Body.String())
}

func TestHandleQR(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})

	c, rec := env.newContext(http.MethodGet, "/api/qr/up1", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("up1")

	require.NoError(t, env.handler.HandleQR(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "qr-up1.png")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestHandleQRNotFound(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.newContext(http.MethodGet, "/api/qr/missing", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("missing")

	require.NoError(t, env.handler.HandleQR(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUploadStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})

	for _, ip := range []string{"10.0.0.1", "10.0.0.1", "10.0.0.2"} {
		require.NoError(t, env.db.InsertAccessEvent(&model.AccessEvent{
			UploadID:  "up1",
			IP:        ip,
			Timestamp: time.Now().UTC(),
		}))
	}

	c, rec := env.newContext(http.MethodGet, "/api/stats/up1", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("up1")

	require.NoError(t, env.handler.HandleUploadStats(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats struct {
			TotalAccesses  int `json:"total_accesses"`
			UniqueVisitors int `json:"unique_visitors"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Stats.TotalAccesses)
	assert.Equal(t, 2, resp.Stats.UniqueVisitors)
}

func TestHandleUploadStatsNotFound(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.newContext(http.MethodGet, "/api/stats/missing", nil, "")
	c.SetParamNames("uploadID")
	c.SetParamValues("missing")

	require.NoError(t, env.handler.HandleUploadStats(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})
	env.seedSession(t, "up2", map[string]string{"b.txt": "world!"})

	c, rec := env.newContext(http.MethodGet, "/api/dashboard", nil, "")

	require.NoError(t, env.handler.HandleDashboard(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		GeneralStats struct {
			TotalUploads int   `json:"total_uploads"`
			TotalStorage int64 `json:"total_storage"`
		} `json:"general_stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.GeneralStats.TotalUploads)
	assert.Equal(t, int64(11), resp.GeneralStats.TotalStorage)
}

func TestHandleExportCSV(t *testing.T) {
	env := newTestEnv(t)
	env.seedSession(t, "up1", map[string]string{"a.txt": "hello"})

	require.NoError(t, env.db.InsertAccessEvent(&model.AccessEvent{
		UploadID:  "up1",
		IP:        "10.0.0.1",
		Country:   "UY",
		Timestamp: time.Now().UTC(),
	}))

	c, rec := env.newContext(http.MethodGet, "/api/export/csv", nil, "")

	require.NoError(t, env.handler.HandleExportCSV(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, exportHeader, rows[0])
	require.Len(t, rows[1], len(exportHeader))
	assert.Equal(t, "up1", rows[1][1])
	assert.Equal(t, "UY", rows[1][3])
	// Fields the recorder could not determine export as the unknown marker.
	assert.Equal(t, "unknown", rows[1][4])
}

func TestHandleExportCSVEmpty(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.newContext(http.MethodGet, "/api/export/csv", nil, "")

	require.NoError(t, env.handler.HandleExportCSV(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
