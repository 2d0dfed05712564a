package geoip

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
)

// cityLanguages is the order in which localized city names are tried.
var cityLanguages = []string{"en", "ja"}

// Resolver maps viewer addresses to a country code and city name. A Resolver
// without a database answers every lookup with empty strings.
type Resolver struct {
	db *maxminddb.Reader
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// New opens the MaxMind database at dbPath. An empty path or an unreadable
// file yields a disabled Resolver rather than an error.
func New(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{}, nil
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, viewer geolocation disabled", "path", dbPath, "error", err)
		return &Resolver{}, nil
	}
	slog.Info("geoip: loaded database", "path", dbPath, "type", db.Metadata.DatabaseType)
	return &Resolver{db: db}, nil
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

// Lookup accepts a bare address or host:port. Private, loopback and other
// non-routable addresses are never looked up.
func (r *Resolver) Lookup(raw string) (country, city string) {
	if !r.Enabled() {
		return "", ""
	}
	addr, ok := parseAddr(raw)
	if !ok || !routable(addr) {
		return "", ""
	}
	var rec cityRecord
	if err := r.db.Lookup(net.IP(addr.AsSlice()), &rec); err != nil {
		slog.Debug("geoip: lookup failed", "ip", addr.String(), "error", err)
		return "", ""
	}
	return rec.Country.ISOCode, cityName(rec.City.Names)
}

func (r *Resolver) Close() error {
	if r.Enabled() {
		return r.db.Close()
	}
	return nil
}

func parseAddr(raw string) (netip.Addr, bool) {
	if raw == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func routable(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsUnspecified() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsMulticast()
}

func cityName(names map[string]string) string {
	for _, lang := range cityLanguages {
		if name := names[lang]; name != "" {
			return name
		}
	}
	return ""
}
