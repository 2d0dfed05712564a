package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nicoplay/nicoplay/internal/database"
	"github.com/nicoplay/nicoplay/internal/realtime"
)

type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// LiveHub serves live comment connections and counts who is watching.
type LiveHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, videoID string, viewer realtime.Viewer)
	Viewers(videoID string) int
}

type Handler struct {
	db             database.DBTX
	storage        ObjectStorage
	maxUploadBytes int64
	broker         realtime.Broker
	live           LiveHub
	geo            realtime.GeoResolver
}

func NewHandler(db database.DBTX, s ObjectStorage, maxUploadBytes int64) *Handler {
	return &Handler{
		db:             db,
		storage:        s,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) SetBroker(b realtime.Broker) {
	h.broker = b
}

func (h *Handler) SetLiveHub(l LiveHub) {
	h.live = l
}

func (h *Handler) SetGeoResolver(g realtime.GeoResolver) {
	h.geo = g
}

var allowedContentTypes = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

var allowedThumbnailTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

const maxThumbnailBytes = 5 << 20

func videoFileKey(objectID, contentType string) string {
	return fmt.Sprintf("videos/%s%s", objectID, allowedContentTypes[contentType])
}

func thumbnailKey(objectID, contentType string) string {
	return fmt.Sprintf("thumbnails/%s%s", objectID, allowedThumbnailTypes[contentType])
}
