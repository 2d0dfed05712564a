package video

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nicoplay/nicoplay/internal/danmaku"
	"github.com/nicoplay/nicoplay/internal/httputil"
	"github.com/nicoplay/nicoplay/internal/realtime"
)

const (
	maxCommentBodyBytes = 16 << 10
	publishTimeout      = 5 * time.Second
)

type commentsResponse struct {
	Comments []danmaku.Comment `json:"comments"`
}

func (h *Handler) videoExists(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := h.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM videos WHERE id = $1 AND status = 'ready')`,
		videoID,
	).Scan(&exists)
	return exists, err
}

// ListComments returns every comment of a video in submission order.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	exists, err := h.videoExists(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load comments")
		return
	}
	if !exists {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	rows, err := h.db.Query(r.Context(),
		`SELECT id, seq, text, vpos, display_mode, color, size, created_at
		 FROM video_comments WHERE video_id = $1 ORDER BY seq`,
		videoID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load comments")
		return
	}
	defer rows.Close()

	comments := make([]danmaku.Comment, 0)
	for rows.Next() {
		c := danmaku.Comment{VideoID: videoID}
		var mode, size string
		var createdAt time.Time
		if err := rows.Scan(&c.ID, &c.Seq, &c.Text, &c.Vpos, &mode, &c.Color, &size, &createdAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "could not load comments")
			return
		}
		c.DisplayMode = danmaku.DisplayMode(mode)
		c.Size = danmaku.Size(size)
		c.CreatedAt = createdAt.Format(time.RFC3339)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not load comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, commentsResponse{Comments: comments})
}

// PostComment appends a comment and broadcasts it to everyone watching.
func (h *Handler) PostComment(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	var draft danmaku.Draft
	if err := httputil.DecodeJSON(w, r, maxCommentBodyBytes, &draft); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := draft.Normalize()
	if err != nil {
		var inputErr *danmaku.InputError
		if errors.As(err, &inputErr) {
			httputil.WriteError(w, http.StatusBadRequest, inputErr.Reason)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid comment")
		return
	}

	// FOR SHARE orders the insert against a concurrent soft delete.
	var createdAt time.Time
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO video_comments (video_id, text, vpos, display_mode, color, size)
		 SELECT v.id, $2, $3, $4, $5, $6 FROM videos v
		 WHERE v.id = $1 AND v.status = 'ready'
		 FOR SHARE
		 RETURNING id, seq, created_at`,
		videoID, c.Text, c.Vpos, string(c.DisplayMode), c.Color, string(c.Size),
	).Scan(&c.ID, &c.Seq, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	if err != nil {
		slog.Error("comment: failed to insert", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not save comment")
		return
	}
	c.VideoID = videoID
	c.CreatedAt = createdAt.Format(time.RFC3339)

	h.publish(r.Context(), realtime.NewCommentEvent(c))

	httputil.WriteJSON(w, http.StatusCreated, c)
}

// Live upgrades to the WebSocket that pushes new comments of one video.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}
	if h.live == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "live comments unavailable")
		return
	}

	exists, err := h.videoExists(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "could not open live comments")
		return
	}
	if !exists {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	h.live.ServeWS(w, r, videoID, realtime.NewViewer(r, h.geo))
}

// publish sends ev once. The request may already be gone, so the publish gets
// its own deadline; a failure is logged and the stored comment stays.
func (h *Handler) publish(ctx context.Context, ev realtime.Event) {
	if h.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, ev); err != nil {
		slog.Error("realtime: publish failed", "video_id", ev.VideoID, "type", ev.Type, "error", err)
	}
}
