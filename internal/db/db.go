package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"shareqr/internal/config"
	"shareqr/internal/model"
)

var (
	// ErrUploadNotFound is returned when no session exists for an id.
	ErrUploadNotFound = errors.New("upload not found")
	// ErrDuplicateID is returned when a session id is already taken. Ids are
	// generated with enough entropy that a collision is a fatal upload
	// failure, not something to resolve in the store.
	ErrDuplicateID = errors.New("upload id already exists")
)

// TimeFormat is how timestamps are stored. Fixed-width UTC so that string
// ordering and SQLite's DATE() agree with chronological order.
const TimeFormat = "2006-01-02T15:04:05.000Z"

type DB struct {
	*sql.DB
}

// NewDB opens the SQLite database. Foreign keys are enabled so that access
// events referencing unknown sessions are rejected at the boundary.
func NewDB(cfg *config.Config) (*DB, error) {
	db, err := sql.Open("sqlite3", cfg.SQLitePath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// FormatTime renders a timestamp in the stored representation.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime reads a stored timestamp back.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// SaveUpload persists a new immutable upload session. The file manifest is
// stored as a JSON blob alongside the denormalized totals.
func (db *DB) SaveUpload(session *model.UploadSession) error {
	files, err := json.Marshal(session.Files)
	if err != nil {
		return fmt.Errorf("failed to serialize file list: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT INTO uploads (id, files, created_at, total_files, total_size)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(session.SessionID, string(files),
		FormatTime(session.CreatedAt), session.TotalFiles, session.TotalSize)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrDuplicateID
		}
		return err
	}

	return nil
}

// GetUpload retrieves a session by id.
func (db *DB) GetUpload(uploadID string) (*model.UploadSession, error) {
	row := db.QueryRow(`
		SELECT id, files, created_at, total_files, total_size
		FROM uploads WHERE id = ?
	`, uploadID)

	session, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}

	return session, nil
}

// ListUploads returns every session, newest first.
func (db *DB) ListUploads() ([]*model.UploadSession, error) {
	rows, err := db.Query(`
		SELECT id, files, created_at, total_files, total_size
		FROM uploads ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.UploadSession
	for rows.Next() {
		session, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*model.UploadSession, error) {
	var session model.UploadSession
	var files, createdAt string

	if err := row.Scan(&session.SessionID, &files, &createdAt,
		&session.TotalFiles, &session.TotalSize); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(files), &session.Files); err != nil {
		return nil, fmt.Errorf("corrupt file list for upload %s: %w", session.SessionID, err)
	}

	created, err := ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt created_at for upload %s: %w", session.SessionID, err)
	}
	session.CreatedAt = created

	return &session, nil
}

// InsertAccessEvent appends one event to the access log. The log is
// append-only; there is no update or delete path.
func (db *DB) InsertAccessEvent(event *model.AccessEvent) error {
	stmt, err := db.Prepare(`
		INSERT INTO access_logs (
			upload_id, ip_address, country, city, device_type, device_vendor,
			device_model, os_name, os_version, browser_name, browser_version,
			language, file_accessed, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var fileAccessed sql.NullString
	if event.FileAccessed != "" {
		fileAccessed = sql.NullString{String: event.FileAccessed, Valid: true}
	}

	res, err := stmt.Exec(
		event.UploadID, event.IP, event.Country, event.City,
		event.DeviceType, event.DeviceVendor, event.DeviceModel,
		event.OSName, event.OSVersion,
		event.BrowserName, event.BrowserVersion,
		event.Language, fileAccessed, FormatTime(event.Timestamp),
	)
	if err != nil {
		return err
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}
