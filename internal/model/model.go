package model

import (
	"encoding/json"
	"time"
)

// Unknown is the display marker for metadata that could not be resolved.
// Stored fields keep whatever was parsed (possibly empty); the marker is
// applied only when events leave the system as JSON or CSV.
const Unknown = "unknown"

// OrUnknown maps an empty field to the display marker.
func OrUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// FileRecord describes one file inside an upload session.
type FileRecord struct {
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type,omitempty"`
}

// UploadSession is the persisted identity of one completed upload.
// Sessions are created once and never updated or deleted.
type UploadSession struct {
	SessionID  string       `json:"id"`
	CreatedAt  time.Time    `json:"created_at"`
	Files      []FileRecord `json:"files"`
	TotalFiles int          `json:"total_files"`
	TotalSize  int64        `json:"total_size"`
}

func (s *UploadSession) ID() string {
	return s.SessionID
}

// FileByName returns the file record whose original name matches exactly.
// If a user uploaded two files with the same display name the first match
// wins; resolution of duplicates is a known limitation.
func (s *UploadSession) FileByName(name string) (FileRecord, bool) {
	for _, f := range s.Files {
		if f.OriginalName == name {
			return f, true
		}
	}
	return FileRecord{}, false
}

// AccessEvent is one immutable record of a read-path request against a
// session. FileAccessed is empty for a share-page view, a file name for a
// single download, or the archive bundle sentinel for a full-bundle download.
type AccessEvent struct {
	ID             int64     `json:"id"`
	UploadID       string    `json:"upload_id"`
	IP             string    `json:"ip_address"`
	Country        string    `json:"country"`
	City           string    `json:"city"`
	DeviceType     string    `json:"device_type"`
	DeviceVendor   string    `json:"device_vendor"`
	DeviceModel    string    `json:"device_model"`
	OSName         string    `json:"os_name"`
	OSVersion      string    `json:"os_version"`
	BrowserName    string    `json:"browser_name"`
	BrowserVersion string    `json:"browser_version"`
	Language       string    `json:"language"`
	FileAccessed   string    `json:"file_accessed"`
	Timestamp      time.Time `json:"timestamp"`
}

// MarshalJSON presents the event with unknown markers applied and a null
// file_accessed for plain share-page views.
func (e AccessEvent) MarshalJSON() ([]byte, error) {
	var fileAccessed *string
	if e.FileAccessed != "" {
		fileAccessed = &e.FileAccessed
	}

	return json.Marshal(struct {
		ID             int64   `json:"id"`
		UploadID       string  `json:"upload_id"`
		IP             string  `json:"ip_address"`
		Country        string  `json:"country"`
		City           string  `json:"city"`
		DeviceType     string  `json:"device_type"`
		DeviceVendor   string  `json:"device_vendor"`
		DeviceModel    string  `json:"device_model"`
		OSName         string  `json:"os_name"`
		OSVersion      string  `json:"os_version"`
		BrowserName    string  `json:"browser_name"`
		BrowserVersion string  `json:"browser_version"`
		Language       string  `json:"language"`
		FileAccessed   *string `json:"file_accessed"`
		Timestamp      string  `json:"timestamp"`
	}{
		ID:             e.ID,
		UploadID:       e.UploadID,
		IP:             e.IP,
		Country:        OrUnknown(e.Country),
		City:           OrUnknown(e.City),
		DeviceType:     OrUnknown(e.DeviceType),
		DeviceVendor:   OrUnknown(e.DeviceVendor),
		DeviceModel:    OrUnknown(e.DeviceModel),
		OSName:         OrUnknown(e.OSName),
		OSVersion:      OrUnknown(e.OSVersion),
		BrowserName:    OrUnknown(e.BrowserName),
		BrowserVersion: OrUnknown(e.BrowserVersion),
		Language:       OrUnknown(e.Language),
		FileAccessed:   fileAccessed,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339),
	})
}
