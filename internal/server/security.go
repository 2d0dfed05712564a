package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/nicoplay/nicoplay/internal/httputil"
)

type SecurityConfig struct {
	BaseURL         string
	StorageEndpoint string
	// AllowedFrameAncestors is a space separated list of origins allowed to
	// embed the player in addition to the site itself.
	AllowedFrameAncestors string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := cfg.BaseURL != "" && hasHTTPS(cfg.BaseURL)

	storageSuffix := ""
	if cfg.StorageEndpoint != "" {
		storageSuffix = " " + cfg.StorageEndpoint
	}

	frameAncestors := "'self'"
	if extra := strings.TrimSpace(cfg.AllowedFrameAncestors); extra != "" {
		frameAncestors += " " + extra
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce := httputil.NewNonce()
			ctx := httputil.WithNonce(r.Context(), nonce)

			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if cfg.AllowedFrameAncestors == "" {
				w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			}
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), fullscreen=(self)")

			csp := fmt.Sprintf(
				"default-src 'self'; img-src 'self' data:%s; media-src 'self' blob:%s; script-src 'self' 'nonce-%s'; style-src 'self' 'nonce-%s'; connect-src 'self'%s; frame-ancestors %s;",
				storageSuffix, storageSuffix, nonce, nonce, storageSuffix, frameAncestors,
			)
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}
