package realtime

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/nicoplay/nicoplay/internal/httputil"
)

type GeoResolver interface {
	Lookup(ip string) (country, city string)
}

// Viewer describes who opened a live connection. It is only logged.
type Viewer struct {
	ID      string
	IP      string
	Country string
	City    string
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

func NewViewer(r *http.Request, geo GeoResolver) Viewer {
	ip := httputil.ClientIP(r)
	ua := useragent.New(r.UserAgent())
	name, version := ua.Browser()

	v := Viewer{
		ID:      viewerHash(ip, r.UserAgent()),
		IP:      ip,
		Browser: strings.TrimSpace(name + " " + version),
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
	if geo != nil {
		v.Country, v.City = geo.Lookup(ip)
	}
	return v
}

func (v Viewer) LogAttrs() []any {
	return []any{
		"viewer_id", v.ID,
		"country", v.Country,
		"city", v.City,
		"browser", v.Browser,
		"os", v.OS,
		"mobile", v.Mobile,
		"bot", v.Bot,
	}
}

func viewerHash(ip, userAgent string) string {
	h := sha256.Sum256([]byte(ip + "|" + userAgent))
	return fmt.Sprintf("%x", h[:8])
}
