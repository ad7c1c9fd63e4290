package access

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoDB resolves client IPs to coarse geography from a local MaxMind
// database. Lookups never touch the network; a nil GeoDB (no database
// configured) resolves everything to unknown.
type GeoDB struct {
	reader *geoip2.Reader
}

// OpenGeoDB opens a MaxMind city database. An empty path is not an error;
// it returns a nil GeoDB whose lookups all come back empty.
func OpenGeoDB(path string) (*GeoDB, error) {
	if path == "" {
		return nil, nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}

	return &GeoDB{reader: reader}, nil
}

// Lookup returns the country code and city for an IP. Unresolvable or
// malformed IPs return empty strings.
func (g *GeoDB) Lookup(ip string) (country, city string) {
	if g == nil || g.reader == nil {
		return "", ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}

	record, err := g.reader.City(parsed)
	if err != nil {
		return "", ""
	}

	return record.Country.IsoCode, record.City.Names["en"]
}

// Close releases the underlying database.
func (g *GeoDB) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}
