package access

import (
	"log"
	"time"

	"github.com/mileusna/useragent"
	"golang.org/x/text/language"

	"shareqr/internal/model"
)

// RequestMeta is the per-request client metadata handed over by the HTTP
// layer. All fields are raw and untrusted.
type RequestMeta struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
}

// EventWriter appends one access event to the log.
type EventWriter interface {
	InsertAccessEvent(event *model.AccessEvent) error
}

// Recorder builds and persists access events. Recording is strictly
// best-effort: it never fails the request that triggered it.
type Recorder struct {
	events EventWriter
	geo    *GeoDB
}

// NewRecorder creates a recorder. geo may be nil when no geoip database is
// configured.
func NewRecorder(events EventWriter, geo *GeoDB) *Recorder {
	return &Recorder{events: events, geo: geo}
}

// Record appends one access event for an inbound read request. fileAccessed
// is empty for a share-page view, the display name for a single download, or
// archive.BundleName for a full-bundle download. Persistence and parse
// failures are logged and swallowed.
func (r *Recorder) Record(uploadID string, meta RequestMeta, fileAccessed string) {
	event := r.buildEvent(uploadID, meta, fileAccessed)
	if err := r.events.InsertAccessEvent(event); err != nil {
		log.Printf("Warning: failed to record access for upload %s: %v", uploadID, err)
	}
}

// buildEvent assembles one event from the raw request metadata. The
// user-agent parser exposes no device vendor, so DeviceVendor stays empty
// and surfaces as the unknown marker at the presentation boundary.
func (r *Recorder) buildEvent(uploadID string, meta RequestMeta, fileAccessed string) *model.AccessEvent {
	ua := useragent.Parse(meta.UserAgent)
	country, city := r.geo.Lookup(meta.IP)

	return &model.AccessEvent{
		UploadID:       uploadID,
		IP:             meta.IP,
		Country:        country,
		City:           city,
		DeviceType:     deviceType(ua),
		DeviceModel:    ua.Device,
		OSName:         ua.OS,
		OSVersion:      ua.OSVersion,
		BrowserName:    ua.Name,
		BrowserVersion: ua.Version,
		Language:       firstLanguage(meta.AcceptLanguage),
		FileAccessed:   fileAccessed,
		Timestamp:      time.Now().UTC(),
	}
}

// deviceType collapses the parser's booleans into one coarse class. An
// unparsable user agent yields an empty class, rendered as unknown at the
// presentation boundary.
func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return ""
	}
}

// firstLanguage extracts the highest-priority Accept-Language preference.
func firstLanguage(header string) string {
	if header == "" {
		return ""
	}

	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}

	return tags[0].String()
}
