package server

import (
	"bytes"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/nicoplay/nicoplay/internal/httputil"
)

var inlineTagPattern = regexp.MustCompile(`<(script|style)\b`)

// spaFileServer serves the player bundle. Paths that do not name a file fall
// back to index.html, which is stamped with the request's CSP nonce.
type spaFileServer struct {
	assets http.Handler
	fsys   fs.FS
}

func newSPAFileServer(fsys fs.FS) *spaFileServer {
	return &spaFileServer{
		assets: http.FileServer(http.FS(fsys)),
		fsys:   fsys,
	}
}

func (s *spaFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" && name != "index.html" {
		info, err := fs.Stat(s.fsys, name)
		if err == nil && !info.IsDir() {
			if strings.HasPrefix(name, "assets/") {
				w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			}
			s.assets.ServeHTTP(w, r)
			return
		}
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
	}
	s.serveIndex(w, r)
}

func (s *spaFileServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	page, err := fs.ReadFile(s.fsys, "index.html")
	if err != nil {
		slog.Error("spa: failed to read index.html", "error", err)
		http.NotFound(w, r)
		return
	}
	if nonce := httputil.NonceFromContext(r.Context()); nonce != "" {
		page = inlineTagPattern.ReplaceAll(page, []byte(`<$1 nonce="`+nonce+`"`))
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(page))
}
