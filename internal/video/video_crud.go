package video

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nicoplay/nicoplay/internal/httputil"
	"github.com/nicoplay/nicoplay/internal/realtime"
	"github.com/nicoplay/nicoplay/internal/validate"
)

const (
	playbackURLExpiry = 4 * time.Hour
	multipartMemory   = 32 << 20
	// room for the title field and multipart framing around the file
	multipartOverhead = 1 << 20
)

type videoResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ContentType  string `json:"contentType"`
	FileSize     int64  `json:"fileSize"`
	Status       string `json:"status"`
	URL          string `json:"url"`
	Thumbnail    string `json:"thumbnail"`
	CommentCount int    `json:"commentCount"`
	Viewers      int    `json:"viewers"`
	CreatedAt    string `json:"createdAt"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("video")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedContentTypes[contentType]; !ok {
		httputil.WriteError(w, http.StatusBadRequest, "only video/mp4, video/webm, and video/quicktime uploads are supported")
		return
	}
	if header.Size <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "video file is empty")
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, path.Ext(header.Filename))
	}
	if title == "" {
		title = "Untitled Video"
	}
	if msg := validate.Title(title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	thumb, thumbHeader, err := r.FormFile("thumbnail")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		httputil.WriteError(w, http.StatusBadRequest, "invalid thumbnail")
		return
	default:
		defer func() { _ = thumb.Close() }()
		if msg := checkThumbnail(thumbHeader); msg != "" {
			httputil.WriteError(w, http.StatusBadRequest, msg)
			return
		}
	}

	objectID := uuid.NewString()
	fileKey := videoFileKey(objectID, contentType)
	if err := h.storage.UploadObject(r.Context(), fileKey, file, header.Size, contentType); err != nil {
		slog.Error("video: upload failed", "key", fileKey, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to upload video")
		return
	}

	var thumbKey string
	if thumb != nil {
		thumbType := thumbHeader.Header.Get("Content-Type")
		thumbKey = thumbnailKey(objectID, thumbType)
		if err := h.storage.UploadObject(r.Context(), thumbKey, thumb, thumbHeader.Size, thumbType); err != nil {
			slog.Error("video: thumbnail upload failed", "key", thumbKey, "error", err)
			go h.discardObjects(fileKey)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to upload thumbnail")
			return
		}
	}

	var videoID string
	var createdAt time.Time
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO videos (title, file_key, content_type, file_size, thumbnail_key)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')) RETURNING id, created_at`,
		title, fileKey, contentType, header.Size, thumbKey,
	).Scan(&videoID, &createdAt)
	if err != nil {
		slog.Error("video: failed to insert video", "key", fileKey, "error", err)
		go h.discardObjects(fileKey, thumbKey)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}

	slog.Info("video: uploaded", "video_id", videoID, "size", header.Size, "content_type", contentType)

	resp := videoResponse{
		ID:          videoID,
		Title:       title,
		ContentType: contentType,
		FileSize:    header.Size,
		Status:      "ready",
		CreatedAt:   createdAt.Format(time.RFC3339),
	}
	resp.URL = h.playbackURL(r.Context(), fileKey)
	resp.Thumbnail = h.thumbnailURL(r.Context(), thumbKey)
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func checkThumbnail(header *multipart.FileHeader) string {
	if _, ok := allowedThumbnailTypes[header.Header.Get("Content-Type")]; !ok {
		return "only image/jpeg, image/png, and image/webp thumbnails are supported"
	}
	if header.Size <= 0 {
		return "thumbnail is empty"
	}
	if header.Size > maxThumbnailBytes {
		return "thumbnail too large"
	}
	return ""
}

// discardObjects removes uploads that never got a database row. Empty keys
// are skipped.
func (h *Handler) discardObjects(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := deleteWithRetry(ctx, h.storage, key, 3); err != nil {
			slog.Error("video: failed to discard unreferenced upload", "key", key, "error", err)
		}
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(r.Context(),
		`SELECT v.id, v.title, v.file_key, v.content_type, v.file_size, v.status, v.created_at,
		        (SELECT count(*) FROM video_comments c WHERE c.video_id = v.id),
		        COALESCE(v.thumbnail_key, '')
		 FROM videos v
		 WHERE v.status = 'ready'
		 ORDER BY v.created_at DESC
		 LIMIT 100`)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	defer rows.Close()

	videos := make([]videoResponse, 0)
	for rows.Next() {
		var v videoResponse
		var fileKey, thumbKey string
		var createdAt time.Time
		if err := rows.Scan(&v.ID, &v.Title, &fileKey, &v.ContentType, &v.FileSize, &v.Status, &createdAt, &v.CommentCount, &thumbKey); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan video")
			return
		}
		v.CreatedAt = createdAt.Format(time.RFC3339)
		v.URL = h.playbackURL(r.Context(), fileKey)
		v.Thumbnail = h.thumbnailURL(r.Context(), thumbKey)
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, videos)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	var v videoResponse
	var fileKey, thumbKey string
	var createdAt time.Time
	err := h.db.QueryRow(r.Context(),
		`SELECT v.id, v.title, v.file_key, v.content_type, v.file_size, v.status, v.created_at,
		        (SELECT count(*) FROM video_comments c WHERE c.video_id = v.id),
		        COALESCE(v.thumbnail_key, '')
		 FROM videos v
		 WHERE v.id = $1 AND v.status = 'ready'`,
		videoID,
	).Scan(&v.ID, &v.Title, &fileKey, &v.ContentType, &v.FileSize, &v.Status, &createdAt, &v.CommentCount, &thumbKey)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load video")
		return
	}

	v.CreatedAt = createdAt.Format(time.RFC3339)
	v.URL = h.playbackURL(r.Context(), fileKey)
	v.Thumbnail = h.thumbnailURL(r.Context(), thumbKey)
	if h.live != nil {
		v.Viewers = h.live.Viewers(v.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// Delete soft-deletes the video, drops its comments and purges the media in
// the background. Files left behind are picked up by the cleanup loop.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	var fileKey, thumbKey string
	err := h.db.QueryRow(r.Context(),
		`UPDATE videos SET status = 'deleted', updated_at = now()
		 WHERE id = $1 AND status != 'deleted'
		 RETURNING file_key, COALESCE(thumbnail_key, '')`,
		videoID,
	).Scan(&fileKey, &thumbKey)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("video: failed to delete video", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`DELETE FROM video_comments WHERE video_id = $1`, videoID,
	); err != nil {
		slog.Error("video: failed to delete comments", "video_id", videoID, "error", err)
	}

	h.publish(r.Context(), realtime.Event{Type: realtime.EventVideoDeleted, VideoID: videoID})

	go h.purgeFile(fileKey, thumbKey)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) purgeFile(fileKey, thumbKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if thumbKey != "" {
		if err := deleteWithRetry(ctx, h.storage, thumbKey, 3); err != nil {
			slog.Error("video: all thumbnail delete retries failed", "key", thumbKey, "error", err)
			return
		}
	}
	if err := deleteWithRetry(ctx, h.storage, fileKey, 3); err != nil {
		slog.Error("video: all delete retries failed", "key", fileKey, "error", err)
		return
	}
	if _, err := h.db.Exec(ctx,
		`UPDATE videos SET file_purged_at = now() WHERE file_key = $1`,
		fileKey,
	); err != nil {
		slog.Error("video: failed to mark file_purged_at", "key", fileKey, "error", err)
	}
}

func (h *Handler) playbackURL(ctx context.Context, fileKey string) string {
	url, err := h.storage.GenerateDownloadURL(ctx, fileKey, playbackURLExpiry)
	if err != nil {
		slog.Error("video: failed to presign playback url", "key", fileKey, "error", err)
		return ""
	}
	return url
}

func (h *Handler) thumbnailURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	return h.playbackURL(ctx, key)
}

func parseVideoID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return "", false
	}
	return id, true
}
