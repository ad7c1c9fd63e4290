package analytics

import (
	"database/sql"
	"time"

	"shareqr/internal/db"
	"shareqr/internal/model"
)

// Aggregator computes read-only rollups over the upload sessions and the
// access log. Every call rescans the log; there is no cached or
// materialized state, so results are never stale. Cost grows linearly with
// log size, an accepted ceiling for a single-node deployment.
type Aggregator struct {
	db *db.DB
}

// New creates an aggregator over the given store handle.
func New(database *db.DB) *Aggregator {
	return &Aggregator{db: database}
}

// AccessTotals are the headline counters for one upload.
type AccessTotals struct {
	TotalAccesses  int `json:"total_accesses"`
	UniqueVisitors int `json:"unique_visitors"`
	Countries      int `json:"countries_count"`
	DeviceTypes    int `json:"device_types_count"`
}

// DayCount is one calendar day's access count. Days are derived from the
// stored event timestamp, not from insertion order.
type DayCount struct {
	Date           string `json:"date"`
	Accesses       int    `json:"accesses"`
	UniqueVisitors int    `json:"unique_visitors,omitempty"`
}

// CountryCount is one country's share of accesses.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// DeviceCount is one device class's share of accesses.
type DeviceCount struct {
	DeviceType string `json:"device_type"`
	Count      int    `json:"count"`
}

// UploadStats is the full per-upload rollup.
type UploadStats struct {
	Upload         *model.UploadSession `json:"upload"`
	Stats          AccessTotals         `json:"stats"`
	DailyStats     []DayCount           `json:"daily_stats"`
	CountryStats   []CountryCount       `json:"country_stats"`
	RecentAccesses []model.AccessEvent  `json:"recent_accesses"`
}

// UploadSummary is one dashboard row per session.
type UploadSummary struct {
	*model.UploadSession
	TotalAccesses  int        `json:"total_accesses"`
	UniqueVisitors int        `json:"unique_visitors"`
	LastAccess     *time.Time `json:"last_access"`
}

// GeneralStats are the global dashboard totals.
type GeneralStats struct {
	TotalUploads   int   `json:"total_uploads"`
	TotalAccesses  int   `json:"total_accesses"`
	UniqueVisitors int   `json:"unique_visitors"`
	TotalStorage   int64 `json:"total_storage"`
}

// DashboardData is everything the dashboard renders.
type DashboardData struct {
	Uploads      []UploadSummary `json:"uploads"`
	GeneralStats GeneralStats    `json:"general_stats"`
	DailyStats   []DayCount      `json:"daily_stats"`
	CountryStats []CountryCount  `json:"country_stats"`
	DeviceStats  []DeviceCount   `json:"device_stats"`
}

// UploadStats computes the rollup for one session: totals, per-day counts
// for the last 30 active days, top 10 countries (ties broken by country
// name for determinism) and the 50 most recent events.
func (a *Aggregator) UploadStats(uploadID string) (*UploadStats, error) {
	upload, err := a.db.GetUpload(uploadID)
	if err != nil {
		return nil, err
	}

	stats := &UploadStats{Upload: upload}

	err = a.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT ip_address),
			COUNT(DISTINCT country),
			COUNT(DISTINCT device_type)
		FROM access_logs WHERE upload_id = ?
	`, uploadID).Scan(
		&stats.Stats.TotalAccesses,
		&stats.Stats.UniqueVisitors,
		&stats.Stats.Countries,
		&stats.Stats.DeviceTypes,
	)
	if err != nil {
		return nil, err
	}

	stats.DailyStats, err = a.dailyCounts(`
		SELECT DATE(timestamp), COUNT(*)
		FROM access_logs
		WHERE upload_id = ?
		GROUP BY DATE(timestamp)
		ORDER BY DATE(timestamp) DESC
		LIMIT 30
	`, uploadID)
	if err != nil {
		return nil, err
	}

	stats.CountryStats, err = a.countryCounts(`
		SELECT country, COUNT(*) AS cnt
		FROM access_logs
		WHERE upload_id = ?
		GROUP BY country
		ORDER BY cnt DESC, country ASC
		LIMIT 10
	`, uploadID)
	if err != nil {
		return nil, err
	}

	stats.RecentAccesses, err = a.queryEvents(`
		SELECT id, upload_id, ip_address, country, city, device_type,
			device_vendor, device_model, os_name, os_version,
			browser_name, browser_version, language, file_accessed, timestamp
		FROM access_logs
		WHERE upload_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 50
	`, uploadID)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DashboardStats computes the global rollup across every session.
func (a *Aggregator) DashboardStats() (*DashboardData, error) {
	data := &DashboardData{}

	uploads, err := a.db.ListUploads()
	if err != nil {
		return nil, err
	}

	for _, upload := range uploads {
		summary := UploadSummary{UploadSession: upload}
		var lastAccess sql.NullString

		err := a.db.QueryRow(`
			SELECT COUNT(*), COUNT(DISTINCT ip_address), MAX(timestamp)
			FROM access_logs WHERE upload_id = ?
		`, upload.SessionID).Scan(&summary.TotalAccesses, &summary.UniqueVisitors, &lastAccess)
		if err != nil {
			return nil, err
		}

		if lastAccess.Valid {
			t, err := db.ParseTime(lastAccess.String)
			if err != nil {
				return nil, err
			}
			summary.LastAccess = &t
		}

		data.Uploads = append(data.Uploads, summary)
	}

	var totalStorage sql.NullInt64
	err = a.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(total_size), 0) FROM uploads`).
		Scan(&data.GeneralStats.TotalUploads, &totalStorage)
	if err != nil {
		return nil, err
	}
	data.GeneralStats.TotalStorage = totalStorage.Int64

	err = a.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT ip_address) FROM access_logs
	`).Scan(&data.GeneralStats.TotalAccesses, &data.GeneralStats.UniqueVisitors)
	if err != nil {
		return nil, err
	}

	cutoff := db.FormatTime(time.Now().AddDate(0, 0, -30))
	data.DailyStats, err = a.dailyVisitorCounts(`
		SELECT DATE(timestamp), COUNT(*), COUNT(DISTINCT ip_address)
		FROM access_logs
		WHERE timestamp >= ?
		GROUP BY DATE(timestamp)
		ORDER BY DATE(timestamp) DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}

	data.CountryStats, err = a.countryCounts(`
		SELECT country, COUNT(*) AS cnt
		FROM access_logs
		GROUP BY country
		ORDER BY cnt DESC, country ASC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.Query(`
		SELECT device_type, COUNT(*) AS cnt
		FROM access_logs
		GROUP BY device_type
		ORDER BY cnt DESC, device_type ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d DeviceCount
		if err := rows.Scan(&d.DeviceType, &d.Count); err != nil {
			return nil, err
		}
		d.DeviceType = model.OrUnknown(d.DeviceType)
		data.DeviceStats = append(data.DeviceStats, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

// ExportAll returns the complete access log, newest first. Intended for
// offline analysis; deliberately unpaginated.
func (a *Aggregator) ExportAll() ([]model.AccessEvent, error) {
	return a.queryEvents(`
		SELECT id, upload_id, ip_address, country, city, device_type,
			device_vendor, device_model, os_name, os_version,
			browser_name, browser_version, language, file_accessed, timestamp
		FROM access_logs
		ORDER BY timestamp DESC, id DESC
	`)
}

func (a *Aggregator) dailyCounts(query string, args ...any) ([]DayCount, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Accesses); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (a *Aggregator) dailyVisitorCounts(query string, args ...any) ([]DayCount, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Accesses, &d.UniqueVisitors); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (a *Aggregator) countryCounts(query string, args ...any) ([]CountryCount, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []CountryCount
	for rows.Next() {
		var c CountryCount
		if err := rows.Scan(&c.Country, &c.Count); err != nil {
			return nil, err
		}
		c.Country = model.OrUnknown(c.Country)
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (a *Aggregator) queryEvents(query string, args ...any) ([]model.AccessEvent, error) {
	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AccessEvent
	for rows.Next() {
		var e model.AccessEvent
		var fileAccessed sql.NullString
		var timestamp string

		err := rows.Scan(&e.ID, &e.UploadID, &e.IP, &e.Country, &e.City,
			&e.DeviceType, &e.DeviceVendor, &e.DeviceModel,
			&e.OSName, &e.OSVersion, &e.BrowserName, &e.BrowserVersion,
			&e.Language, &fileAccessed, &timestamp)
		if err != nil {
			return nil, err
		}

		e.FileAccessed = fileAccessed.String
		e.Timestamp, err = db.ParseTime(timestamp)
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
