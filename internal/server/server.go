package server

import (
	"context"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nicoplay/nicoplay/internal/database"
	"github.com/nicoplay/nicoplay/internal/httputil"
	"github.com/nicoplay/nicoplay/internal/ratelimit"
	"github.com/nicoplay/nicoplay/internal/realtime"
	"github.com/nicoplay/nicoplay/internal/validate"
	"github.com/nicoplay/nicoplay/internal/video"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB                    database.DBTX
	Pinger                Pinger
	Storage               video.ObjectStorage
	Hub                   video.LiveHub
	Broker                realtime.Broker
	Geo                   realtime.GeoResolver
	WebFS                 fs.FS
	BaseURL               string
	MaxUploadBytes        int64
	S3PublicEndpoint      string
	AllowedFrameAncestors string
}

type Server struct {
	router         chi.Router
	pinger         Pinger
	videoHandler   *video.Handler
	webFS          fs.FS
	maxUploadBytes int64
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:               cfg.BaseURL,
		StorageEndpoint:       cfg.S3PublicEndpoint,
		AllowedFrameAncestors: cfg.AllowedFrameAncestors,
	}))

	s := &Server{router: r, pinger: cfg.Pinger, webFS: cfg.WebFS, maxUploadBytes: cfg.MaxUploadBytes}

	if cfg.DB != nil {
		s.videoHandler = video.NewHandler(cfg.DB, cfg.Storage, cfg.MaxUploadBytes)
		if cfg.Broker != nil {
			s.videoHandler.SetBroker(cfg.Broker)
		}
		if cfg.Hub != nil {
			s.videoHandler.SetLiveHub(cfg.Hub)
		}
		if cfg.Geo != nil {
			s.videoHandler.SetGeoResolver(cfg.Geo)
		}
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)

	if s.videoHandler != nil {
		videoLimiter := ratelimit.NewLimiter(10, 40)
		uploadLimiter := ratelimit.NewLimiter(0.2, 3)
		commentLimiter := ratelimit.NewLimiter(1, 5, ratelimit.WithKey(ratelimit.VideoKey))
		s.router.Route("/api/videos", func(r chi.Router) {
			r.Use(videoLimiter.Middleware)
			r.Get("/", s.videoHandler.List)
			r.With(uploadLimiter.Middleware).Post("/", s.videoHandler.Upload)
			r.Get("/{id}", s.videoHandler.Get)
			r.With(uploadLimiter.Middleware).Delete("/{id}", s.videoHandler.Delete)
			r.Get("/{id}/comments", s.videoHandler.ListComments)
			r.With(commentLimiter.Middleware).Post("/{id}/comments", s.videoHandler.PostComment)
			r.Get("/{id}/live", s.videoHandler.Live)
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type limitsResponse struct {
	Fields         map[string]int `json:"fields"`
	MaxUploadBytes int64          `json:"maxUploadBytes"`
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, limitsResponse{
		Fields:         validate.FieldLimits(),
		MaxUploadBytes: s.maxUploadBytes,
	})
}
